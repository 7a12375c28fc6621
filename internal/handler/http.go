package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mirakl-orchestrator/internal/carrier"
	"mirakl-orchestrator/internal/csvio"
	"mirakl-orchestrator/internal/entities"
	"mirakl-orchestrator/internal/parser"
	"mirakl-orchestrator/internal/service"
	"mirakl-orchestrator/internal/tracker"
	"mirakl-orchestrator/internal/validate"
	"mirakl-orchestrator/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type OrchestratorService interface {
	IngestCSV(ctx context.Context, marketplace, sourceURL, raw string) (service.IngestSummary, error)
	LoadOrders(ctx context.Context) (service.LoadSummary, error)
	PollTracking(ctx context.Context) (service.StageSummary, error)
	PushTracking(ctx context.Context) (service.StageSummary, error)
	GetRecord(ctx context.Context, orderID string) (entities.OrchestrationRecord, error)
	CurrentView(ctx context.Context, f tracker.ViewFilter) ([]entities.OrchestrationRecord, error)
	Stats(ctx context.Context) (entities.OrchestrationStats, error)
	ExportOperationsLog(ctx context.Context) (string, error)
	ExportCurrentView(ctx context.Context) (string, error)
}

type HTTPHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	svc      OrchestratorService
	mapping  parser.ColumnMapping
}

func NewHTTPHandler(logger *slog.Logger, svc OrchestratorService) *HTTPHandler {
	return &HTTPHandler{
		logger:   logger.With(slog.String("handler", "http")),
		validate: validator.New(),
		svc:      svc,
		mapping:  parser.MiraklMapping(),
	}
}

func (h *HTTPHandler) Init(r chi.Router) {
	r.Post("/parse", h.ParseOrders)
	r.Post("/map/tipsa", h.MapTIPSA)

	r.Post("/orchestrator/load-orders", h.LoadOrders)
	r.Post("/orchestrator/poll-tracking", h.PollTracking)
	r.Post("/orchestrator/push-tracking", h.PushTracking)
	r.Get("/orchestrator/view", h.CurrentView)
	r.Get("/orchestrator/stats", h.Stats)
	r.Get("/orchestrator/orders/{order_id}", h.GetRecord)

	r.Get("/logs/operations.csv", h.OperationsLog)
	r.Get("/logs/orders-view.csv", h.OrdersViewLog)
}

type ParseRequest struct {
	Marketplace string `json:"marketplace,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	CSV         string `json:"csv" validate:"required"`
}

type ParsedOrder struct {
	Order    Order                 `json:"order"`
	Errors   []validate.FieldError `json:"errors,omitempty"`
	Warnings []validate.FieldError `json:"warnings,omitempty"`
}

type ParseResponse struct {
	Marketplace string        `json:"marketplace"`
	Orders      []ParsedOrder `json:"orders"`
}

// ParseOrders normalizes a raw marketplace export into canonical orders
// without touching the orchestration log. Validation issues ride along
// per order so callers can inspect rejects.
func (h *HTTPHandler) ParseOrders(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	marketplace := req.Marketplace
	if marketplace == "" {
		marketplace = parser.DetectMarketplace(nil, req.SourceURL)
	}

	orders, err := parser.Parse(req.CSV, h.mapping)
	if err != nil {
		var pe *entities.ParseError
		if errors.As(err, &pe) {
			utils.WriteError(w, pe.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to parse export", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := ParseResponse{Marketplace: marketplace, Orders: make([]ParsedOrder, 0, len(orders))}
	for _, o := range orders {
		o.Marketplace = marketplace
		res := validate.Order(o)
		resp.Orders = append(resp.Orders, ParsedOrder{
			Order:    OrderEntityToJSON(o),
			Errors:   res.Errors,
			Warnings: res.Warnings,
		})
	}

	utils.WriteJSON(w, resp, http.StatusOK)
}

type MapRequest struct {
	Orders  []Order `json:"orders" validate:"required,min=1,dive"`
	Service string  `json:"service,omitempty"`
}

type MappedRow struct {
	OrderID string   `json:"order_id"`
	Fields  []string `json:"fields"`
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

type MapResponse struct {
	CSV  string      `json:"csv"`
	Rows []MappedRow `json:"rows"`
}

// MapTIPSA converts canonical orders into a TIPSA import file. Rows
// failing the TIPSA contract are reported but still rendered, so the
// caller decides what to drop.
func (h *HTTPHandler) MapTIPSA(w http.ResponseWriter, r *http.Request) {
	var req MapRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	mapper := carrier.NewTIPSA(req.Service)
	rows := make([][]string, 0, len(req.Orders))
	mapped := make([]MappedRow, 0, len(req.Orders))
	for _, dto := range req.Orders {
		row := mapper.MapOrder(OrderJSONToEntity(dto)).(carrier.TIPSARow)
		v := carrier.ValidateTIPSARow(row)
		rows = append(rows, row.Fields())
		mapped = append(mapped, MappedRow{
			OrderID: dto.OrderID,
			Fields:  row.Fields(),
			IsValid: v.IsValid,
			Errors:  v.Errors,
		})
	}

	out, err := csvio.Export(carrier.TIPSAHeader, rows, csvio.TIPSADelimiter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render tipsa csv", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, MapResponse{CSV: out, Rows: mapped}, http.StatusOK)
}

func (h *HTTPHandler) LoadOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	start := time.Now()
	summary, err := h.svc.LoadOrders(ctx)
	pipelineDuration.WithLabelValues("load_orders").Observe(time.Since(start).Seconds())
	if err != nil {
		pipelineRuns.WithLabelValues("load_orders", "error").Inc()
		h.logger.ErrorContext(ctx, "failed to load orders", slog.Any("error", err))
		utils.WriteError(w, "failed to load orders", http.StatusBadGateway)
		return
	}

	pipelineRuns.WithLabelValues("load_orders", "ok").Inc()
	utils.WriteJSON(w, summary, http.StatusOK)
}

func (h *HTTPHandler) PollTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	start := time.Now()
	summary, err := h.svc.PollTracking(ctx)
	pipelineDuration.WithLabelValues("poll_tracking").Observe(time.Since(start).Seconds())
	if err != nil {
		pipelineRuns.WithLabelValues("poll_tracking", "error").Inc()
		h.logger.ErrorContext(ctx, "failed to poll tracking", slog.Any("error", err))
		utils.WriteError(w, "failed to poll tracking", http.StatusBadGateway)
		return
	}

	pipelineRuns.WithLabelValues("poll_tracking", "ok").Inc()
	utils.WriteJSON(w, summary, http.StatusOK)
}

func (h *HTTPHandler) PushTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	start := time.Now()
	summary, err := h.svc.PushTracking(ctx)
	pipelineDuration.WithLabelValues("push_tracking").Observe(time.Since(start).Seconds())
	if err != nil {
		pipelineRuns.WithLabelValues("push_tracking", "error").Inc()
		h.logger.ErrorContext(ctx, "failed to push tracking", slog.Any("error", err))
		utils.WriteError(w, "failed to push tracking", http.StatusBadGateway)
		return
	}

	pipelineRuns.WithLabelValues("push_tracking", "ok").Inc()
	utils.WriteJSON(w, summary, http.StatusOK)
}

func (h *HTTPHandler) CurrentView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := tracker.ViewFilter{
		State:   entities.InternalState(r.URL.Query().Get("state")),
		Carrier: r.URL.Query().Get("carrier"),
	}

	records, err := h.svc.CurrentView(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read current view", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]OrchestrationRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordEntityToJSON(rec))
	}
	utils.WriteJSON(w, out, http.StatusOK)
}

func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.svc.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read stats", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, StatsEntityToJSON(stats), http.StatusOK)
}

func (h *HTTPHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "order_id")

	if err := h.validate.Var(orderID, "required"); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	rec, err := h.svc.GetRecord(ctx, orderID)

	if errors.Is(err, entities.ErrOrderNotFound) {
		utils.WriteError(w, "order not found", http.StatusNotFound)
		return
	}

	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get record", slog.Any("error", err), slog.String("order_id", orderID))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, RecordEntityToJSON(rec), http.StatusOK)
}

func (h *HTTPHandler) OperationsLog(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ExportOperationsLog(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to export operations log", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeCSV(w, "operations.csv", out)
}

func (h *HTTPHandler) OrdersViewLog(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ExportCurrentView(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to export orders view", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeCSV(w, "orders_view.csv", out)
}

func writeCSV(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
