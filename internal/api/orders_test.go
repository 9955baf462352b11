package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/lifecycle"
	"github.com/byteball/attestation-kit/internal/middleware"
	"github.com/byteball/attestation-kit/internal/shared"
	"github.com/byteball/attestation-kit/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "operator-token"

var testAddress = strings.Repeat("A", 32)

type lengthValidator struct{}

func (lengthValidator) IsValidAddress(address string) bool { return len(address) == 32 }

type apiFixture struct {
	router http.Handler
	db     *store.SQLiteStore
}

func newAPIFixture(t *testing.T, allowDuplicates bool) *apiFixture {
	t.Helper()
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"), shared.DefaultRetryPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	manager := lifecycle.NewManager(db, allowDuplicates)
	base := NewHandler(db, manager, lifecycle.Pairing{PubKey: "PUB", Hub: "hub.example"}, lengthValidator{})

	r := chi.NewRouter()
	NewHealthHandler(db, 0).RegisterHealth(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.OperatorToken(testToken))
		NewOrderHandler(base).RegisterRoutes(r)
	})
	return &apiFixture{router: r, db: db}
}

func (f *apiFixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestCreateOrder(t *testing.T) {
	f := newAPIFixture(t, true)
	body := map[string]interface{}{"data": map[string]interface{}{"userId": 42, "username": "alice"}}

	w := f.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"]

	w = f.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, id, decode(t, w)["id"], "same fields return the same order")

	order, err := f.db.FindOrder(context.Background(), store.OrderFilter{Fields: domain.Fields{"userId": "42", "username": "alice"}})
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.StatusPending, order.Status)
}

func TestCreateOrderRejectsDuplicates(t *testing.T) {
	f := newAPIFixture(t, true)
	body := map[string]interface{}{"data": map[string]interface{}{"userId": "42"}, "allow_duplicates": false}

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/orders", body).Code)

	w := f.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, domain.ErrAlreadyExists.Error(), resp["error"])
}

func TestCreateOrderValidation(t *testing.T) {
	f := newAPIFixture(t, true)

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "no data", body: map[string]interface{}{}},
		{name: "too many fields", body: map[string]interface{}{"data": map[string]interface{}{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}}},
		{name: "nested value", body: map[string]interface{}{"data": map[string]interface{}{"a": map[string]interface{}{"b": 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/orders", tt.body).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddressBinding(t *testing.T) {
	f := newAPIFixture(t, true)
	data := map[string]interface{}{"userId": "42"}
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/orders", map[string]interface{}{"data": data}).Code)

	bind := map[string]interface{}{"data": data, "address": testAddress}

	w := f.do(t, http.MethodPut, "/api/orders/address", bind)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "addressed", decode(t, w)["status"])

	w = f.do(t, http.MethodGet, "/api/orders?userId=42&address="+testAddress, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testAddress, decode(t, w)["address"])

	w = f.do(t, http.MethodDelete, "/api/orders/address", bind)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decode(t, w)["status"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/orders/address", bind).Code)

	bad := map[string]interface{}{"data": data, "address": "short"}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/orders/address", bad).Code)

	missing := map[string]interface{}{"data": map[string]interface{}{"userId": "7"}, "address": testAddress}
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/api/orders/address", missing).Code)
}

func TestAttestedOrderConflicts(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t, true)
	fields := domain.Fields{"userId": "42"}
	_, err := f.db.CreateOrder(ctx, fields, true)
	require.NoError(t, err)
	require.NoError(t, f.db.BindAddress(ctx, fields, testAddress))
	require.NoError(t, f.db.Finalize(ctx, fields, testAddress, "unit123"))

	bind := map[string]interface{}{"data": map[string]interface{}{"userId": "42"}, "address": testAddress}
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPut, "/api/orders/address", bind).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/orders/address", bind).Code)

	w := f.do(t, http.MethodGet, "/api/orders?userId=42&exclude_attested=true", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/orders?address="+testAddress+"&multiple=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decode(t, w)["orders"].([]interface{})
	require.Len(t, orders, 1)
	assert.Equal(t, "unit123", orders[0].(map[string]interface{})["unit"])
}

func TestFindOrdersNeedsFilter(t *testing.T) {
	f := newAPIFixture(t, true)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/orders", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/orders?a=1&a=2", nil).Code)

	w := f.do(t, http.MethodGet, "/api/orders?userId=1&multiple=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["orders"])
}

func TestPairingURL(t *testing.T) {
	f := newAPIFixture(t, true)

	w := f.do(t, http.MethodGet, "/api/pairing-url", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "obyte:PUB@hub.example#0000", resp["without_data"])
	assert.Equal(t, "obyte:PUB@hub.example#back", resp["back"])
	assert.NotContains(t, resp, "url")

	w = f.do(t, http.MethodGet, "/api/pairing-url?address="+testAddress+"&userId=42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "obyte:PUB@hub.example#"+testAddress+"-userId=42", decode(t, w)["url"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/pairing-url?address=short&userId=42", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/pairing-url?address="+testAddress, nil).Code)
}

func TestGetAttestation(t *testing.T) {
	ctx := context.Background()
	f := newAPIFixture(t, true)
	require.NoError(t, f.db.RecordAttestation(ctx, &domain.AttestationRecord{
		Unit:     "unit123",
		Address:  testAddress,
		Profile:  domain.Fields{"userId": "42"},
		Attestor: testAddress,
	}))

	w := f.do(t, http.MethodGet, "/api/attestations/unit123", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, testAddress, resp["address"])
	assert.Equal(t, map[string]interface{}{"userId": "42"}, resp["profile"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/attestations/nope", nil).Code)
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t, true)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pairing-url", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, true)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	require.NoError(t, f.db.Close())
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
