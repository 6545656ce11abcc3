package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"backoffice-ledger/internal/ledger/application"
	ledger "backoffice-ledger/internal/ledger/domain"
)

// Store is an in-memory implementation of the application store. Begin holds
// the store mutex until Commit or Rollback, mirroring the blocking row-lock
// semantics of the relational engine: a concurrent session waits for the
// holder to finish, it is not cancelled.
type Store struct {
	mu             sync.Mutex
	receivables    map[string]*ledger.Obligation
	payables       map[string]*ledger.Obligation
	stock          map[string]*ledger.StockLine
	replenishments []*ledger.ReplenishmentEntry
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		receivables: make(map[string]*ledger.Obligation),
		payables:    make(map[string]*ledger.Obligation),
		stock:       make(map[string]*ledger.StockLine),
	}
}

// Begin opens a session over staged copies of the store's state. Nothing is
// visible outside the session until Commit.
func (s *Store) Begin(ctx context.Context) (application.Session, error) {
	_ = ctx
	s.mu.Lock()
	return &session{
		store:          s,
		receivables:    cloneObligations(s.receivables),
		payables:       cloneObligations(s.payables),
		stock:          cloneStock(s.stock),
		replenishments: append([]*ledger.ReplenishmentEntry(nil), s.replenishments...),
	}, nil
}

// StockLine returns the committed stock line, for assertion convenience.
func (s *Store) StockLine(productID string) *ledger.StockLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID].Clone()
}

// Obligation returns the committed obligation, for assertion convenience.
func (s *Store) Obligation(kind ledger.ObligationKind, id string) *ledger.Obligation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.family(kind)[id].Clone()
}

// Leaves returns the committed settlement leaves of a parent.
func (s *Store) Leaves(kind ledger.ObligationKind, parentID string) []*ledger.Obligation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*ledger.Obligation
	for _, o := range s.family(kind) {
		if o.ParentID == parentID {
			result = append(result, o.Clone())
		}
	}
	return result
}

// Replenishments returns the committed history entries for a product.
func (s *Store) Replenishments(productID string) []*ledger.ReplenishmentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*ledger.ReplenishmentEntry
	for _, entry := range s.replenishments {
		if entry.ProductID == productID {
			clone := *entry
			result = append(result, &clone)
		}
	}
	return result
}

// PutObligation force-writes an obligation, bypassing referential checks.
// Test seeding only.
func (s *Store) PutObligation(o *ledger.Obligation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.family(o.Kind)[o.ID] = o.Clone()
}

func (s *Store) family(kind ledger.ObligationKind) map[string]*ledger.Obligation {
	if kind == ledger.KindPayable {
		return s.payables
	}
	return s.receivables
}

func cloneObligations(src map[string]*ledger.Obligation) map[string]*ledger.Obligation {
	dst := make(map[string]*ledger.Obligation, len(src))
	for id, o := range src {
		dst[id] = o.Clone()
	}
	return dst
}

func cloneStock(src map[string]*ledger.StockLine) map[string]*ledger.StockLine {
	dst := make(map[string]*ledger.StockLine, len(src))
	for id, line := range src {
		dst[id] = line.Clone()
	}
	return dst
}

type session struct {
	store          *Store
	done           bool
	receivables    map[string]*ledger.Obligation
	payables       map[string]*ledger.Obligation
	stock          map[string]*ledger.StockLine
	replenishments []*ledger.ReplenishmentEntry
}

func (s *session) Obligations() application.ObligationRepository {
	return &obligationRepo{session: s}
}

func (s *session) Stock() application.StockRepository {
	return &stockRepo{session: s}
}

func (s *session) Commit() error {
	if s.done {
		return errors.New("memory store: session closed")
	}
	s.done = true
	s.store.receivables = s.receivables
	s.store.payables = s.payables
	s.store.stock = s.stock
	s.store.replenishments = s.replenishments
	s.store.mu.Unlock()
	return nil
}

// Rollback discards the staged state. No-op after Commit.
func (s *session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	s.store.mu.Unlock()
	return nil
}

func (s *session) family(kind ledger.ObligationKind) map[string]*ledger.Obligation {
	if kind == ledger.KindPayable {
		return s.payables
	}
	return s.receivables
}

type obligationRepo struct {
	session *session
}

func (r *obligationRepo) GetForUpdate(ctx context.Context, kind ledger.ObligationKind, id string) (*ledger.Obligation, error) {
	return r.Get(ctx, kind, id)
}

func (r *obligationRepo) Get(ctx context.Context, kind ledger.ObligationKind, id string) (*ledger.Obligation, error) {
	_ = ctx
	if id == "" {
		return nil, ledger.ErrEmptyID
	}
	o := r.session.family(kind)[id]
	if o == nil {
		return nil, ledger.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *obligationRepo) Insert(ctx context.Context, o *ledger.Obligation) error {
	_ = ctx
	if o == nil {
		return ledger.ErrNilObligation
	}
	family := r.session.family(o.Kind)
	if _, exists := family[o.ID]; exists {
		return errors.New("memory store: duplicate obligation id")
	}
	family[o.ID] = o.Clone()
	return nil
}

func (r *obligationRepo) Update(ctx context.Context, o *ledger.Obligation) error {
	_ = ctx
	if o == nil {
		return ledger.ErrNilObligation
	}
	family := r.session.family(o.Kind)
	existing := family[o.ID]
	if existing == nil {
		return ledger.ErrNotFound
	}
	updated := o.Clone()
	updated.Lines = existing.Lines
	family[o.ID] = updated
	return nil
}

func (r *obligationRepo) ReplaceLines(ctx context.Context, id string, lines []ledger.LineItem) error {
	_ = ctx
	existing := r.session.receivables[id]
	if existing == nil {
		return ledger.ErrNotFound
	}
	existing.Lines = make([]ledger.LineItem, len(lines))
	copy(existing.Lines, lines)
	return nil
}

// Delete removes the row. Settlement leaves that point at the deleted
// obligation stay behind as orphans, same as the relational schema.
func (r *obligationRepo) Delete(ctx context.Context, kind ledger.ObligationKind, id string) error {
	_ = ctx
	family := r.session.family(kind)
	if _, ok := family[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(family, id)
	return nil
}

type stockRepo struct {
	session *session
}

func (r *stockRepo) GetForUpdate(ctx context.Context, productID string) (*ledger.StockLine, error) {
	return r.Get(ctx, productID)
}

func (r *stockRepo) Get(ctx context.Context, productID string) (*ledger.StockLine, error) {
	_ = ctx
	if productID == "" {
		return nil, ledger.ErrEmptyProductID
	}
	line := r.session.stock[productID]
	if line == nil {
		return nil, ledger.ErrNotFound
	}
	return line.Clone(), nil
}

func (r *stockRepo) Create(ctx context.Context, line *ledger.StockLine) error {
	_ = ctx
	if line == nil {
		return errors.New("memory store: nil stock line")
	}
	if _, exists := r.session.stock[line.ProductID]; exists {
		return errors.New("memory store: duplicate product id")
	}
	r.session.stock[line.ProductID] = line.Clone()
	return nil
}

func (r *stockRepo) AdjustQuantity(ctx context.Context, productID string, delta decimal.Decimal) error {
	_ = ctx
	line := r.session.stock[productID]
	if line == nil {
		return ledger.ErrNotFound
	}
	next := line.QuantityOnHand.Add(delta)
	if next.IsNegative() {
		return errors.New("memory store: quantity on hand below zero")
	}
	line.QuantityOnHand = next
	return nil
}

func (r *stockRepo) AppendReplenishment(ctx context.Context, entry *ledger.ReplenishmentEntry) error {
	_ = ctx
	if entry == nil {
		return errors.New("memory store: nil replenishment entry")
	}
	clone := *entry
	r.session.replenishments = append(r.session.replenishments, &clone)
	return nil
}
