//go:build integration

package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/pos-engine/internal/domain/client"
	"github.com/xenking/pos-engine/internal/domain/coupon"
	"github.com/xenking/pos-engine/internal/domain/product"
	"github.com/xenking/pos-engine/internal/domain/sale"
	"github.com/xenking/pos-engine/internal/handler"
	"github.com/xenking/pos-engine/internal/money"
	"github.com/xenking/pos-engine/internal/repository"
	"github.com/xenking/pos-engine/internal/repository/pgtest"
	"github.com/xenking/pos-engine/internal/txn"
	"github.com/xenking/pos-engine/pkg/health"
	"github.com/xenking/pos-engine/pkg/httpmiddleware"
)

var (
	server  *httptest.Server
	catalog *repository.Catalog
)

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dsn, terminate, err := pgtest.Start(ctx)
	if err != nil {
		log.Printf("postgres: %v", err)
		return 1
	}
	defer terminate()

	pool, err := repository.NewPool(ctx, dsn)
	if err != nil {
		log.Printf("pool: %v", err)
		return 1
	}
	defer pool.Close()
	if err := repository.RunMigrations(ctx, pool); err != nil {
		log.Printf("migrations: %v", err)
		return 1
	}
	catalog = repository.NewCatalog(pool)

	exec, err := txn.NewExecutor(txn.Options{
		MaxRetries: 20,
		BaseDelay:  2 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
	}, noop.NewMeterProvider().Meter("test"))
	if err != nil {
		log.Printf("executor: %v", err)
		return 1
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", time.Second, health.PingCheck(pool))
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(sale.NewService(repository.NewStore(pool), exec), repository.NewProductRepository(pool)).Register(mux)

	find := httpmiddleware.MakeRouteFinder(mux)
	server = httptest.NewServer(httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zap.NewNop()),
		httpmiddleware.LogRequests(find),
	))
	defer server.Close()

	return m.Run()
}

func call(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp, out
}

func TestProbes(t *testing.T) {
	resp, body := call(t, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = call(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRequestIDEcho(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, server.URL+"/livez", nil)
	require.NoError(t, err)
	req.Header.Set(httpmiddleware.RequestIDHeader, "terminal-7")
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "terminal-7", resp.Header.Get(httpmiddleware.RequestIDHeader))

	resp, _ = call(t, http.MethodGet, "/livez", "")
	assert.NotEmpty(t, resp.Header.Get(httpmiddleware.RequestIDHeader))
}

func TestSaleLifecycle(t *testing.T) {
	ctx := context.Background()
	productID := "p-" + uuid.NewString()
	clientID := "c-" + uuid.NewString()
	code := "E2E" + strings.ToUpper(uuid.NewString()[:8])

	require.NoError(t, catalog.UpsertProduct(ctx, &product.Product{
		ID: productID, Name: "Coffee", Price: money.MustParse("7.30"), Cost: money.MustParse("3.00"), Stock: 3,
	}))
	require.NoError(t, catalog.UpsertClient(ctx, &client.Client{ID: clientID, Name: "Ana"}))
	require.NoError(t, catalog.UpsertTicket(ctx, &coupon.Ticket{
		ID: uuid.NewString(), Code: code, DiscountPercent: decimal.RequireFromString("33.33"), UsageLimit: 1, IsActive: true,
	}))

	resp, body := call(t, http.MethodPost, "/api/sales", `{"items":[{"productId":"`+productID+`","quantity":3}],
		"clientId":"`+clientID+`","couponCode":"`+strings.ToLower(code)+`","paymentType":"PIX"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/sales/"+id, resp.Header.Get("Location"))
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "21.90", body["subtotal"])
	assert.Equal(t, "7.30", body["totalDiscount"])
	assert.Equal(t, "14.60", body["total"])

	// The single-use coupon is spent even though the sale is pending.
	resp, body = call(t, http.MethodPost, "/api/sales", `{"items":[{"productId":"`+productID+`","quantity":1}],
		"couponCode":"`+code+`","paymentType":"MONEY"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", body["kind"])

	resp, body = call(t, http.MethodPatch, "/api/sales/"+id+"/status", `{"status":"COMPLETED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "COMPLETED", body["status"])

	resp, body = call(t, http.MethodGet, "/api/products/"+productID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["stock"])

	resp, body = call(t, http.MethodPatch, "/api/sales/"+id+"/status", `{"status":"CANCELLED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = call(t, http.MethodGet, "/api/products/"+productID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["stock"])

	resp, body = call(t, http.MethodGet, "/api/sales/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Equal(t, clientID, body["clientId"])
}

func TestErrorsOverHTTP(t *testing.T) {
	resp, body := call(t, http.MethodPost, "/api/sales",
		`{"items":[{"productId":"missing-`+uuid.NewString()+`","quantity":1}],"paymentType":"MONEY"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", body["kind"])

	resp, body = call(t, http.MethodGet, "/api/sales/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["kind"])

	resp, body = call(t, http.MethodGet, "/api/products/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["kind"])
}
