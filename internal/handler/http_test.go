package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mirakl-orchestrator/internal/entities"
	"mirakl-orchestrator/internal/handler"
	"mirakl-orchestrator/internal/service"
	"mirakl-orchestrator/internal/tracker"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService implements handler.OrchestratorService with overridable
// behavior per test.
type fakeService struct {
	ingest       func(ctx context.Context, marketplace, sourceURL, raw string) (service.IngestSummary, error)
	loadOrders   func(ctx context.Context) (service.LoadSummary, error)
	pollTracking func(ctx context.Context) (service.StageSummary, error)
	pushTracking func(ctx context.Context) (service.StageSummary, error)
	getRecord    func(ctx context.Context, orderID string) (entities.OrchestrationRecord, error)
	currentView  func(ctx context.Context, f tracker.ViewFilter) ([]entities.OrchestrationRecord, error)
	stats        func(ctx context.Context) (entities.OrchestrationStats, error)
	opsLog       func(ctx context.Context) (string, error)
	viewLog      func(ctx context.Context) (string, error)
}

func (f *fakeService) IngestCSV(ctx context.Context, marketplace, sourceURL, raw string) (service.IngestSummary, error) {
	return f.ingest(ctx, marketplace, sourceURL, raw)
}

func (f *fakeService) LoadOrders(ctx context.Context) (service.LoadSummary, error) {
	return f.loadOrders(ctx)
}

func (f *fakeService) PollTracking(ctx context.Context) (service.StageSummary, error) {
	return f.pollTracking(ctx)
}

func (f *fakeService) PushTracking(ctx context.Context) (service.StageSummary, error) {
	return f.pushTracking(ctx)
}

func (f *fakeService) GetRecord(ctx context.Context, orderID string) (entities.OrchestrationRecord, error) {
	return f.getRecord(ctx, orderID)
}

func (f *fakeService) CurrentView(ctx context.Context, filter tracker.ViewFilter) ([]entities.OrchestrationRecord, error) {
	return f.currentView(ctx, filter)
}

func (f *fakeService) Stats(ctx context.Context) (entities.OrchestrationStats, error) {
	return f.stats(ctx)
}

func (f *fakeService) ExportOperationsLog(ctx context.Context) (string, error) {
	return f.opsLog(ctx)
}

func (f *fakeService) ExportCurrentView(ctx context.Context) (string, error) {
	return f.viewLog(ctx)
}

func newRouter(svc *fakeService) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewHTTPHandler(logger, svc)
	r := chi.NewRouter()
	h.Init(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr.Result()
}

func TestHTTPHandler_ParseOrders(t *testing.T) {
	r := newRouter(&fakeService{})

	csv := "Order ID,Created,Status,SKU,Product,Quantity,Unit price,Buyer name,Shipping name,Address 1,City,Postcode,Country\n" +
		"MIR-001,2025-09-19T20:00:00Z,PENDING,SKU-100,Cafetera,1,45.99,Juan,Juan,Calle Mayor 123,Madrid,28001,ES\n"
	payload, err := json.Marshal(map[string]string{
		"source_url": "https://tenant.mirakl.net/export",
		"csv":        csv,
	})
	require.NoError(t, err)

	res := doJSON(t, r, http.MethodPost, "/parse", string(payload))
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var resp handler.ParseResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	assert.Equal(t, "mirakl", resp.Marketplace)
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, "MIR-001", resp.Orders[0].Order.OrderID)
	assert.Empty(t, resp.Orders[0].Errors)
}

func TestHTTPHandler_ParseOrders_Errors(t *testing.T) {
	r := newRouter(&fakeService{})

	testCases := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "invalid json", body: "{broken", wantStatus: http.StatusBadRequest},
		{name: "missing csv", body: `{"marketplace":"mirakl"}`, wantStatus: http.StatusBadRequest},
		{name: "unparseable csv", body: `{"csv":"foo,bar\n1,2\n"}`, wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := doJSON(t, r, http.MethodPost, "/parse", tc.body)
			defer res.Body.Close()
			assert.Equal(t, tc.wantStatus, res.StatusCode)
		})
	}
}

func TestHTTPHandler_MapTIPSA(t *testing.T) {
	r := newRouter(&fakeService{})

	body := `{"orders":[{
		"order_id":"MIR-001",
		"created_at":"2025-09-19T20:00:00Z",
		"status":"PENDING",
		"items":[{"sku":"SKU-100","name":"Cafetera","quantity":1,"unit_price":"45.99"}],
		"buyer":{"name":"Juan Pérez","email":"juan@email.com","phone":"+34612345678"},
		"shipping":{"name":"Juan Pérez","address1":"Calle Mayor 123","city":"Madrid","postcode":"6186","country":"ES"},
		"totals":{"goods":"45.99","shipping":"0"}
	}]}`

	res := doJSON(t, r, http.MethodPost, "/map/tipsa", body)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var resp handler.MapResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))

	assert.True(t, strings.HasPrefix(resp.CSV, "destinatario;direccion;cp;"))
	assert.Contains(t, resp.CSV, "06186")
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "MIR-001", resp.Rows[0].OrderID)
	assert.True(t, resp.Rows[0].IsValid)
}

func TestHTTPHandler_MapTIPSA_InvalidRowReported(t *testing.T) {
	r := newRouter(&fakeService{})

	// Postcode maps to "ABC", which violates the TIPSA contract.
	body := `{"orders":[{
		"order_id":"MIR-002",
		"created_at":"2025-09-19T20:00:00Z",
		"status":"PENDING",
		"items":[{"sku":"SKU-200","name":"Auriculares","quantity":1,"unit_price":"16.25"}],
		"buyer":{"name":"María"},
		"shipping":{"name":"María","address1":"Avenida 1","city":"Barcelona","postcode":"ABC","country":"ES"},
		"totals":{"goods":"16.25","shipping":"0"}
	}]}`

	res := doJSON(t, r, http.MethodPost, "/map/tipsa", body)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var resp handler.MapResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	require.Len(t, resp.Rows, 1)
	assert.False(t, resp.Rows[0].IsValid)
	assert.Contains(t, resp.Rows[0].Errors, "Invalid postal code format")
}

func TestHTTPHandler_LoadOrders(t *testing.T) {
	svc := &fakeService{
		loadOrders: func(context.Context) (service.LoadSummary, error) {
			return service.LoadSummary{
				Ingest:           service.IngestSummary{Marketplace: "mirakl", Parsed: 2, Accepted: 2},
				ShipmentsCreated: 2,
				Breakdown: map[string]service.CarrierBreakdown{
					"tipsa": {Orders: 2, Shipments: 2},
				},
			}, nil
		},
	}
	r := newRouter(svc)

	res := doJSON(t, r, http.MethodPost, "/orchestrator/load-orders", "")
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"shipments_created":2`)
}

func TestHTTPHandler_LoadOrders_Error(t *testing.T) {
	svc := &fakeService{
		loadOrders: func(context.Context) (service.LoadSummary, error) {
			return service.LoadSummary{}, errors.New("marketplace down")
		},
	}
	r := newRouter(svc)

	res := doJSON(t, r, http.MethodPost, "/orchestrator/load-orders", "")
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestHTTPHandler_PollAndPush(t *testing.T) {
	svc := &fakeService{
		pollTracking: func(context.Context) (service.StageSummary, error) {
			return service.StageSummary{Attempted: 3, Succeeded: 2, Failed: 1}, nil
		},
		pushTracking: func(context.Context) (service.StageSummary, error) {
			return service.StageSummary{Attempted: 2, Succeeded: 2}, nil
		},
	}
	r := newRouter(svc)

	res := doJSON(t, r, http.MethodPost, "/orchestrator/poll-tracking", "")
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), `"succeeded":2`)

	res = doJSON(t, r, http.MethodPost, "/orchestrator/push-tracking", "")
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestHTTPHandler_GetRecord(t *testing.T) {
	validRecord := entities.OrchestrationRecord{
		OrderID:       "MIR-001",
		Marketplace:   "mirakl",
		CarrierCode:   "tipsa",
		InternalState: entities.StatePosted,
		UpdatedAt:     time.Date(2025, 9, 19, 20, 0, 0, 0, time.UTC),
	}

	testCases := []struct {
		name       string
		orderID    string
		getRecord  func(ctx context.Context, orderID string) (entities.OrchestrationRecord, error)
		wantStatus int
		wantBody   string
	}{
		{
			name:    "success",
			orderID: "MIR-001",
			getRecord: func(_ context.Context, orderID string) (entities.OrchestrationRecord, error) {
				return validRecord, nil
			},
			wantStatus: http.StatusOK,
			wantBody:   `"order_id":"MIR-001"`,
		},
		{
			name:    "not found",
			orderID: "missing",
			getRecord: func(_ context.Context, orderID string) (entities.OrchestrationRecord, error) {
				return entities.OrchestrationRecord{}, entities.ErrOrderNotFound
			},
			wantStatus: http.StatusNotFound,
			wantBody:   `"order not found"`,
		},
		{
			name:    "internal error",
			orderID: "MIR-001",
			getRecord: func(_ context.Context, orderID string) (entities.OrchestrationRecord, error) {
				return entities.OrchestrationRecord{}, errors.New("db error")
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `"internal server error"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(&fakeService{getRecord: tc.getRecord})

			res := doJSON(t, r, http.MethodGet, "/orchestrator/orders/"+tc.orderID, "")
			defer res.Body.Close()

			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)

			assert.Equal(t, tc.wantStatus, res.StatusCode)
			assert.Contains(t, string(body), tc.wantBody)
		})
	}
}

func TestHTTPHandler_CurrentView(t *testing.T) {
	var gotFilter tracker.ViewFilter
	svc := &fakeService{
		currentView: func(_ context.Context, f tracker.ViewFilter) ([]entities.OrchestrationRecord, error) {
			gotFilter = f
			return []entities.OrchestrationRecord{
				{OrderID: "MIR-001", InternalState: entities.StatePosted, CarrierCode: "tipsa"},
			}, nil
		},
	}
	r := newRouter(svc)

	res := doJSON(t, r, http.MethodGet, "/orchestrator/view?state=POSTED&carrier=tipsa", "")
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	assert.Equal(t, entities.StatePosted, gotFilter.State)
	assert.Equal(t, "tipsa", gotFilter.Carrier)

	var records []handler.OrchestrationRecord
	require.NoError(t, json.NewDecoder(res.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "MIR-001", records[0].OrderID)
}

func TestHTTPHandler_Stats(t *testing.T) {
	svc := &fakeService{
		stats: func(context.Context) (entities.OrchestrationStats, error) {
			return entities.OrchestrationStats{
				TotalOrders: 2,
				ByState:     map[entities.InternalState]int{entities.StatePosted: 2},
				ByCarrier:   map[string]int{"tipsa": 2},
			}, nil
		},
	}
	r := newRouter(svc)

	res := doJSON(t, r, http.MethodGet, "/orchestrator/stats", "")
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"total_orders":2`)
	assert.Contains(t, string(body), `"POSTED":2`)
}

func TestHTTPHandler_LogExports(t *testing.T) {
	svc := &fakeService{
		opsLog: func(context.Context) (string, error) {
			return "ts;action;ok;msg;details_json\n", nil
		},
		viewLog: func(context.Context) (string, error) {
			return "mirakl_order_id;marketplace\n", nil
		},
	}
	r := newRouter(svc)

	res := doJSON(t, r, http.MethodGet, "/logs/operations.csv", "")
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header.Get("Content-Type"))
	body, _ := io.ReadAll(res.Body)
	assert.True(t, strings.HasPrefix(string(body), "ts;action;ok"))

	res = doJSON(t, r, http.MethodGet, "/logs/orders-view.csv", "")
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Disposition"), "orders_view.csv")
}
