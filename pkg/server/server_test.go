package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/internal/ratelimit"
	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/server/commands"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/storage/memory"
	"github.com/merchantd/merchantd/pkg/testutils"
)

func newTestHandler(t *testing.T, cfg *Config) (http.Handler, storage.Datastore) {
	t.Helper()

	ds := memory.New()
	t.Cleanup(ds.Close)

	srv := New(&Dependencies{Datastore: ds}, cfg)
	return srv.Handler(), ds
}

func seedServerProduct(t *testing.T, ds storage.Datastore, category string) *model.Product {
	t.Helper()

	p := &model.Product{
		ID:         ulid.Make().String(),
		SKU:        "sku-" + testutils.CreateRandomString(10),
		Name:       "seeded product",
		Category:   category,
		PriceCents: 1950,
		Currency:   "USD",
		Stock:      10,
	}
	require.NoError(t, ds.CreateProduct(context.Background(), p))
	return p
}

func doRequest(handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	resp := doRequest(handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"status": "ok"}`, resp.Body.String())
}

func TestProductRoutes(t *testing.T) {
	t.Run("crud_round_trip", func(t *testing.T) {
		handler, _ := newTestHandler(t, nil)

		created := doRequest(handler, http.MethodPost, "/v1/products", []byte(`{
			"sku": "kb-2042",
			"name": "tenkeyless keyboard",
			"category": "keyboards",
			"price_cents": 9900,
			"currency": "USD",
			"stock": 25
		}`))
		require.Equal(t, http.StatusCreated, created.Code)

		var product model.Product
		require.NoError(t, json.Unmarshal(created.Body.Bytes(), &product))
		require.NotEmpty(t, product.ID)
		require.Equal(t, "kb-2042", product.SKU)

		got := doRequest(handler, http.MethodGet, "/v1/products/"+product.ID, nil)
		require.Equal(t, http.StatusOK, got.Code)

		patched := doRequest(handler, http.MethodPatch, "/v1/products/"+product.ID, []byte(`{"price_cents": 8900}`))
		require.Equal(t, http.StatusOK, patched.Code)
		var updated model.Product
		require.NoError(t, json.Unmarshal(patched.Body.Bytes(), &updated))
		require.Equal(t, int64(8900), updated.PriceCents)
		require.Equal(t, "kb-2042", updated.SKU)

		deleted := doRequest(handler, http.MethodDelete, "/v1/products/"+product.ID, nil)
		require.Equal(t, http.StatusNoContent, deleted.Code)

		gone := doRequest(handler, http.MethodGet, "/v1/products/"+product.ID, nil)
		require.Equal(t, http.StatusNotFound, gone.Code)
	})

	t.Run("malformed_body_is_rejected", func(t *testing.T) {
		handler, _ := newTestHandler(t, nil)

		resp := doRequest(handler, http.MethodPost, "/v1/products", []byte(`{"sku": `))
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("list_pages_with_cursor", func(t *testing.T) {
		handler, ds := newTestHandler(t, nil)
		for i := 0; i < 3; i++ {
			seedServerProduct(t, ds, "keyboards")
		}

		first := doRequest(handler, http.MethodGet, "/v1/products?page_size=2", nil)
		require.Equal(t, http.StatusOK, first.Code)

		var page commands.ListProductsResponse
		require.NoError(t, json.Unmarshal(first.Body.Bytes(), &page))
		require.Len(t, page.Data, 2)
		require.True(t, page.HasMore)
		require.NotEmpty(t, page.NextCursor)

		second := doRequest(handler, http.MethodGet, "/v1/products?page_size=2&cursor="+page.NextCursor, nil)
		require.Equal(t, http.StatusOK, second.Code)
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &page))
		require.Len(t, page.Data, 1)
		require.False(t, page.HasMore)
	})

	t.Run("page_size_param_is_validated", func(t *testing.T) {
		handler, _ := newTestHandler(t, nil)

		for _, target := range []string{
			"/v1/products?page_size=0",
			"/v1/products?page_size=-5",
			"/v1/products?page_size=abc",
		} {
			resp := doRequest(handler, http.MethodGet, target, nil)
			require.Equal(t, http.StatusBadRequest, resp.Code, target)
		}
	})

	t.Run("offset_mode_serves_the_legacy_shape", func(t *testing.T) {
		handler, ds := newTestHandler(t, nil)
		for i := 0; i < 3; i++ {
			seedServerProduct(t, ds, "keyboards")
		}

		resp := doRequest(handler, http.MethodGet, "/v1/products?offset=1&page_size=2", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var page commands.ListProductsResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &page))
		require.Len(t, page.Data, 2)
		require.Empty(t, page.NextCursor)

		bad := doRequest(handler, http.MethodGet, "/v1/products?offset=-1", nil)
		require.Equal(t, http.StatusBadRequest, bad.Code)
	})

	t.Run("bulk_route_applies_patches", func(t *testing.T) {
		handler, ds := newTestHandler(t, nil)
		p := seedServerProduct(t, ds, "keyboards")

		body := fmt.Sprintf(`{"records": [{"id": %q, "stock": 0}]}`, p.ID)
		resp := doRequest(handler, http.MethodPost, "/v1/products/bulk", []byte(body))
		require.Equal(t, http.StatusOK, resp.Code)

		var bulk commands.BulkUpdateResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &bulk))
		require.Equal(t, 1, bulk.AppliedCount)
		require.Empty(t, bulk.UnresolvedIDs)
	})

	t.Run("bulk_route_enforces_the_record_cap", func(t *testing.T) {
		handler, ds := newTestHandler(t, &Config{MaxRecordsPerBulkRequest: 2})
		p := seedServerProduct(t, ds, "keyboards")

		body := fmt.Sprintf(`{"records": [
			{"id": %q, "stock": 0},
			{"id": "01ARZ3NDEKTSV4RRFFQ69G5FAV", "stock": 1},
			{"id": "01BX5ZZKBKACTAV9WEVGEMMVRZ", "stock": 2}
		]}`, p.ID)
		resp := doRequest(handler, http.MethodPost, "/v1/products/bulk", []byte(body))
		require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	})
}

func TestOrderRoutes(t *testing.T) {
	t.Run("create_and_transition", func(t *testing.T) {
		handler, _ := newTestHandler(t, nil)

		created := doRequest(handler, http.MethodPost, "/v1/orders", []byte(`{
			"customer_email": "buyer@example.com",
			"total_cents": 12900,
			"currency": "EUR"
		}`))
		require.Equal(t, http.StatusCreated, created.Code)

		var order model.Order
		require.NoError(t, json.Unmarshal(created.Body.Bytes(), &order))
		require.Equal(t, model.OrderStatusPending, order.Status)
		require.NotEmpty(t, order.Reference)

		patched := doRequest(handler, http.MethodPatch, "/v1/orders/"+order.ID, []byte(`{"status": "paid"}`))
		require.Equal(t, http.StatusOK, patched.Code)

		got := doRequest(handler, http.MethodGet, "/v1/orders/"+order.ID, nil)
		require.Equal(t, http.StatusOK, got.Code)
		require.NoError(t, json.Unmarshal(got.Body.Bytes(), &order))
		require.Equal(t, model.OrderStatusPaid, order.Status)
	})

	t.Run("orders_cannot_be_deleted", func(t *testing.T) {
		handler, _ := newTestHandler(t, nil)

		resp := doRequest(handler, http.MethodDelete, "/v1/orders/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)
		require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
	})

	t.Run("status_filter_is_validated", func(t *testing.T) {
		handler, _ := newTestHandler(t, nil)

		resp := doRequest(handler, http.MethodGet, "/v1/orders?status=refunded", nil)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestExportRoutes(t *testing.T) {
	t.Run("json_array_is_the_default_framing", func(t *testing.T) {
		handler, ds := newTestHandler(t, nil)
		seedServerProduct(t, ds, "keyboards")
		seedServerProduct(t, ds, "keyboards")

		resp := doRequest(handler, http.MethodGet, "/v1/products/export", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "application/json", resp.Header().Get("Content-Type"))

		var products []*model.Product
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &products))
		require.Len(t, products, 2)
	})

	t.Run("accept_selects_ndjson", func(t *testing.T) {
		handler, ds := newTestHandler(t, nil)
		seedServerProduct(t, ds, "keyboards")
		seedServerProduct(t, ds, "keyboards")

		req := httptest.NewRequest(http.MethodGet, "/v1/products/export", nil)
		req.Header.Set("Accept", "application/x-ndjson")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "application/x-ndjson", resp.Header().Get("Content-Type"))

		lines := strings.Split(strings.TrimSpace(resp.Body.String()), "\n")
		require.Len(t, lines, 2)
		for _, line := range lines {
			var product model.Product
			require.NoError(t, json.Unmarshal([]byte(line), &product))
		}
	})

	t.Run("accept_selects_cbor", func(t *testing.T) {
		handler, ds := newTestHandler(t, nil)
		seedServerProduct(t, ds, "keyboards")

		req := httptest.NewRequest(http.MethodGet, "/v1/products/export", nil)
		req.Header.Set("Accept", "application/cbor")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "application/cbor", resp.Header().Get("Content-Type"))

		var product model.Product
		require.NoError(t, cbor.NewDecoder(resp.Body).Decode(&product))
		require.Equal(t, "seeded product", product.Name)
	})

	t.Run("record_limit_trips_mid_stream_with_a_sentinel", func(t *testing.T) {
		handler, ds := newTestHandler(t, nil)
		seedServerProduct(t, ds, "keyboards")
		seedServerProduct(t, ds, "keyboards")

		req := httptest.NewRequest(http.MethodGet, "/v1/products/export?max_records=1", nil)
		req.Header.Set("Accept", "application/x-ndjson")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)

		// The status was committed before the limit tripped; the failure
		// arrives as the final framed record.
		require.Equal(t, http.StatusOK, resp.Code)

		lines := strings.Split(strings.TrimSpace(resp.Body.String()), "\n")
		require.Len(t, lines, 2)
		require.Contains(t, lines[1], `"error":true`)
		require.Contains(t, lines[1], `"records_streamed":1`)
	})

	t.Run("max_records_must_be_an_integer", func(t *testing.T) {
		handler, _ := newTestHandler(t, nil)

		resp := doRequest(handler, http.MethodGet, "/v1/products/export?max_records=abc", nil)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("order_export_honors_the_status_filter", func(t *testing.T) {
		handler, ds := newTestHandler(t, nil)

		pending := &model.Order{
			ID:            ulid.Make().String(),
			Reference:     "ref-" + testutils.CreateRandomString(10),
			CustomerEmail: "buyer@example.com",
			Status:        model.OrderStatusPending,
			TotalCents:    4200,
			Currency:      "USD",
		}
		require.NoError(t, ds.CreateOrder(context.Background(), pending))
		paid := &model.Order{
			ID:            ulid.Make().String(),
			Reference:     "ref-" + testutils.CreateRandomString(10),
			CustomerEmail: "buyer@example.com",
			Status:        model.OrderStatusPaid,
			TotalCents:    4200,
			Currency:      "USD",
		}
		require.NoError(t, ds.CreateOrder(context.Background(), paid))

		resp := doRequest(handler, http.MethodGet, "/v1/orders/export?status=paid", nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var orders []*model.Order
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &orders))
		require.Len(t, orders, 1)
		require.Equal(t, paid.ID, orders[0].ID)
	})

	t.Run("rate_limited_export_rejects_over_limit", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		srv := New(&Dependencies{
			Datastore: ds,
			Limiter:   ratelimit.NewLimiter(1, time.Minute, 0),
		}, &Config{RateLimitPartitionBy: "ip"})
		handler := srv.Handler()

		first := doRequest(handler, http.MethodGet, "/v1/products/export", nil)
		require.Equal(t, http.StatusOK, first.Code)

		second := doRequest(handler, http.MethodGet, "/v1/products/export", nil)
		require.Equal(t, http.StatusTooManyRequests, second.Code)
		require.NotEmpty(t, second.Header().Get("Retry-After"))

		// The limit gates only the export group; plain reads stay open.
		list := doRequest(handler, http.MethodGet, "/v1/products", nil)
		require.Equal(t, http.StatusOK, list.Code)
	})
}
