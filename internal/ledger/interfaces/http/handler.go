package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"backoffice-ledger/internal/audit"
	"backoffice-ledger/internal/ledger/application"
	ledger "backoffice-ledger/internal/ledger/domain"
)

const dateLayout = "2006-01-02"

// actorHeader carries the already-authenticated actor identity supplied by
// the (out-of-scope) auth layer in front of this API.
const actorHeader = "X-Actor-ID"

// Handler exposes the engine's core operations over JSON.
type Handler struct {
	sales       *application.SaleService
	expenses    *application.ExpenseService
	settlements *application.SettlementService
	stock       *application.StockService
	auditLogger audit.Logger
	logger      zerolog.Logger
}

// NewHandler constructs a handler.
func NewHandler(
	sales *application.SaleService,
	expenses *application.ExpenseService,
	settlements *application.SettlementService,
	stock *application.StockService,
	auditLogger audit.Logger,
	logger zerolog.Logger,
) (*Handler, error) {
	if sales == nil || expenses == nil || settlements == nil || stock == nil {
		return nil, errors.New("ledger handler: nil service")
	}
	return &Handler{
		sales:       sales,
		expenses:    expenses,
		settlements: settlements,
		stock:       stock,
		auditLogger: auditLogger,
		logger:      logger,
	}, nil
}

// Register mounts the routes under /api/v1.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sales", h.handleRecordSale)
		r.Put("/sales/{id}", h.handleEditSale)
		r.Delete("/sales/{id}", h.handleDeleteSale)
		r.Post("/sales/{id}/settlements", h.handleSettle(ledger.KindReceivable))
		r.Post("/expenses", h.handleRegisterExpense)
		r.Delete("/expenses/{id}", h.handleDeleteExpense)
		r.Post("/expenses/{id}/settlements", h.handleSettle(ledger.KindPayable))
		r.Post("/products", h.handleCreateProduct)
		r.Post("/products/{id}/replenishments", h.handleReplenish)
	})
}

type saleLineRequest struct {
	ProductID       string           `json:"product_id"`
	Quantity        decimal.Decimal  `json:"quantity"`
	ManualUnitPrice *decimal.Decimal `json:"manual_unit_price,omitempty"`
}

type saleRequest struct {
	ClientID    string            `json:"client_id"`
	Description string            `json:"description"`
	OriginDate  string            `json:"origin_date"`
	DueDate     string            `json:"due_date"`
	Lines       []saleLineRequest `json:"lines"`
}

func (h *Handler) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	input, err := saleInputFromRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sale, err := h.sales.Record(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, "sale.record", "receivable", sale.ID)
	respondJSON(w, http.StatusCreated, obligationResponse(sale))
}

func (h *Handler) handleEditSale(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	input, err := saleInputFromRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sale, err := h.sales.Edit(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, "sale.edit", "receivable", sale.ID)
	respondJSON(w, http.StatusOK, obligationResponse(sale))
}

func (h *Handler) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sales.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, "sale.delete", "receivable", id)
	w.WriteHeader(http.StatusNoContent)
}

type expenseRequest struct {
	SupplierID  string          `json:"supplier_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	OriginDate  string          `json:"origin_date"`
	DueDate     string          `json:"due_date"`
}

func (h *Handler) handleRegisterExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	origin, err := parseDate(req.OriginDate)
	if err != nil {
		http.Error(w, "origin_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		http.Error(w, "due_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	expense, err := h.expenses.Register(r.Context(), application.ExpenseInput{
		SupplierID:  req.SupplierID,
		Description: req.Description,
		Amount:      req.Amount,
		OriginDate:  origin,
		DueDate:     due,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, "expense.register", "payable", expense.ID)
	respondJSON(w, http.StatusCreated, obligationResponse(expense))
}

func (h *Handler) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.expenses.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, "expense.delete", "payable", id)
	w.WriteHeader(http.StatusNoContent)
}

type settleRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
}

func (h *Handler) handleSettle(kind ledger.ObligationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req settleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		settlement, err := h.settlements.Settle(r.Context(), kind, id, req.Amount, date, r.Header.Get(actorHeader))
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.logAudit(r, "settlement.apply", string(kind), id)
		respondJSON(w, http.StatusOK, obligationResponse(settlement))
	}
}

type productRequest struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	InitialOnHand decimal.Decimal `json:"initial_on_hand"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	line, err := h.stock.CreateProduct(r.Context(), application.ProductInput{
		ProductID:     req.ProductID,
		Name:          req.Name,
		Unit:          req.Unit,
		UnitPrice:     req.UnitPrice,
		InitialOnHand: req.InitialOnHand,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, "product.create", "stock_line", line.ProductID)
	respondJSON(w, http.StatusCreated, stockLineResponse(line))
}

type replenishRequest struct {
	QuantityAdded decimal.Decimal `json:"quantity_added"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Note          string          `json:"note"`
}

func (h *Handler) handleReplenish(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	var req replenishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	line, err := h.stock.Replenish(r.Context(), productID, req.QuantityAdded, req.TotalCost, req.Note, r.Header.Get(actorHeader))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logAudit(r, "stock.replenish", "stock_line", productID)
	respondJSON(w, http.StatusOK, stockLineResponse(line))
}

func saleInputFromRequest(req saleRequest) (application.SaleInput, error) {
	origin, err := parseDate(req.OriginDate)
	if err != nil {
		return application.SaleInput{}, errors.New("origin_date must be YYYY-MM-DD")
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		return application.SaleInput{}, errors.New("due_date must be YYYY-MM-DD")
	}
	lines := make([]ledger.ReservationLine, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = ledger.ReservationLine{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			ManualUnitPrice: line.ManualUnitPrice,
		}
	}
	return application.SaleInput{
		ClientID:    req.ClientID,
		Description: req.Description,
		OriginDate:  origin,
		DueDate:     due,
		Lines:       lines,
	}, nil
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	return time.Parse(dateLayout, value)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var short *ledger.InsufficientStockError
	var over *ledger.OverpaymentError
	switch {
	case errors.As(err, &short):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "insufficient stock",
			"product_id": short.ProductID,
			"available":  short.Available,
			"requested":  short.Requested,
		})
	case errors.As(err, &over):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":       "overpayment",
			"outstanding": over.Outstanding,
			"tendered":    over.Tendered,
		})
	case errors.Is(err, ledger.ErrAlreadySettled):
		respondJSON(w, http.StatusConflict, map[string]any{"error": "already settled"})
	case errors.Is(err, ledger.ErrForeignKeyInUse):
		respondJSON(w, http.StatusConflict, map[string]any{"error": "row is referenced elsewhere"})
	case errors.Is(err, ledger.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	case errors.Is(err, ledger.ErrNoLines),
		errors.Is(err, ledger.ErrDuplicateProduct),
		errors.Is(err, ledger.ErrNonPositiveQuantity),
		errors.Is(err, ledger.ErrNonPositiveTender),
		errors.Is(err, ledger.ErrInvalidSettlementDate),
		errors.Is(err, ledger.ErrNegativeAmount),
		errors.Is(err, ledger.ErrEmptyProductID),
		errors.Is(err, ledger.ErrEmptyID):
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	default:
		// Store failures are reported generically; the detail stays in logs.
		h.logger.Error().Err(err).Msg("ledger operation failed")
		respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID string) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.Entry{
		Actor:        r.Header.Get(actorHeader),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           r.RemoteAddr,
	}
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Warn().Err(err).Str("action", action).Msg("audit log failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type obligationJSON struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	OriginDate     string          `json:"origin_date"`
	DueDate        string          `json:"due_date"`
	SettledDate    string          `json:"settled_date,omitempty"`
	SettledBy      string          `json:"settled_by,omitempty"`
	CounterpartyID string          `json:"counterparty_id,omitempty"`
	ParentID       string          `json:"parent_id,omitempty"`
	Lines          []lineItemJSON  `json:"lines,omitempty"`
}

type lineItemJSON struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

func obligationResponse(o *ledger.Obligation) obligationJSON {
	resp := obligationJSON{
		ID:             o.ID,
		Kind:           string(o.Kind),
		Description:    o.Description,
		Amount:         o.Amount,
		OriginDate:     o.OriginDate.Format(dateLayout),
		DueDate:        o.DueDate.Format(dateLayout),
		SettledBy:      o.SettledBy,
		CounterpartyID: o.CounterpartyID,
		ParentID:       o.ParentID,
	}
	if o.SettledDate != nil {
		resp.SettledDate = o.SettledDate.Format(dateLayout)
	}
	for _, item := range o.Lines {
		resp.Lines = append(resp.Lines, lineItemJSON{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Unit:        item.Unit,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		})
	}
	return resp
}

type stockLineJSON struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
}

func stockLineResponse(line *ledger.StockLine) stockLineJSON {
	return stockLineJSON{
		ProductID:      line.ProductID,
		Name:           line.Name,
		Unit:           line.Unit,
		UnitPrice:      line.UnitPrice,
		QuantityOnHand: line.QuantityOnHand,
	}
}
