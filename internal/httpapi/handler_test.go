package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centromex/shopping-buddy/internal/apperr"
	"github.com/centromex/shopping-buddy/internal/db"
	"github.com/centromex/shopping-buddy/internal/gateway"
	"github.com/centromex/shopping-buddy/internal/lifecycle"
	"github.com/centromex/shopping-buddy/internal/models"
	"github.com/centromex/shopping-buddy/internal/payment"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- stub-based tests ---

type stubService struct {
	err   error
	calls []string
}

func (s *stubService) ResolveActor(_ context.Context, role models.Role, email string) (models.Actor, error) {
	if email == "ghost@example.com" {
		return models.Actor{}, apperr.NotFound("customer not found with email: %s", email)
	}
	return models.Actor{Role: role, ID: 1, Email: email}, nil
}

func (s *stubService) record(name string) (*models.RequestDetails, error) {
	s.calls = append(s.calls, name)
	if s.err != nil {
		return nil, s.err
	}
	return &models.RequestDetails{ShoppingRequest: models.ShoppingRequest{ID: 7, Status: models.StatusPending}}, nil
}

func (s *stubService) Create(context.Context, models.Actor, lifecycle.RequestInput) (*models.RequestDetails, error) {
	return s.record("create")
}

func (s *stubService) Get(context.Context, models.Actor, int64) (*models.RequestDetails, error) {
	return s.record("get")
}

func (s *stubService) ListPending(context.Context, models.Actor) ([]models.RequestDetails, error) {
	_, err := s.record("pending")
	return nil, err
}

func (s *stubService) ListForCustomer(context.Context, models.Actor) ([]models.RequestDetails, error) {
	_, err := s.record("customer")
	return nil, err
}

func (s *stubService) ListForShopper(context.Context, models.Actor) ([]models.RequestDetails, error) {
	_, err := s.record("shopper")
	return nil, err
}

func (s *stubService) Accept(context.Context, models.Actor, int64) (*models.RequestDetails, error) {
	return s.record("accept")
}

func (s *stubService) StartShopping(context.Context, models.Actor, int64) (*models.RequestDetails, error) {
	return s.record("start")
}

func (s *stubService) Complete(context.Context, models.Actor, int64) (*models.RequestDetails, error) {
	return s.record("complete")
}

func (s *stubService) Abandon(context.Context, models.Actor, int64) (*models.RequestDetails, error) {
	return s.record("abandon")
}

func (s *stubService) Cancel(context.Context, models.Actor, int64) (*models.RequestDetails, error) {
	return s.record("cancel")
}

func (s *stubService) Update(context.Context, models.Actor, int64, lifecycle.RequestInput) (*models.RequestDetails, error) {
	return s.record("update")
}

func (s *stubService) AuthorizePayment(context.Context, int64) (*models.ShoppingRequest, error) {
	d, err := s.record("authorize")
	if err != nil {
		return nil, err
	}
	return &d.ShoppingRequest, nil
}

func (s *stubService) ShopperBalance(context.Context, models.Actor) (decimal.Decimal, error) {
	_, err := s.record("balance")
	return decimal.RequireFromString("60.1"), err
}

func do(t *testing.T, h http.Handler, method, path, role, email string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if role != "" {
		req.Header.Set(headerRole, role)
	}
	if email != "" {
		req.Header.Set(headerEmail, email)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestErrorKindMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{name: "not_found", err: apperr.NotFound("shopping request not found"), wantStatus: http.StatusNotFound, wantKind: "not_found"},
		{name: "unauthorized", err: apperr.Unauthorized("not yours"), wantStatus: http.StatusForbidden, wantKind: "unauthorized"},
		{name: "invalid_transition", err: apperr.InvalidTransition("not pending"), wantStatus: http.StatusConflict, wantKind: "invalid_transition"},
		{name: "payment_failure", err: apperr.Payment("capture", "declined", nil), wantStatus: http.StatusBadRequest, wantKind: "payment_failure"},
		{name: "validation", err: apperr.Validation("no items"), wantStatus: http.StatusBadRequest, wantKind: "validation_failure"},
		{name: "timeout", err: fmt.Errorf("store: %w", context.DeadlineExceeded), wantStatus: http.StatusGatewayTimeout, wantKind: "timeout"},
		{name: "internal", err: errors.New("disk I/O error"), wantStatus: http.StatusInternalServerError, wantKind: "internal"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(&stubService{err: tt.err}, Config{}, quietLogger()).Routes()

			rec := do(t, h, http.MethodPost, "/api/shopping-requests/7/accept", "shopper", "sam@example.com", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, tt.wantKind, payload.Kind)
			if tt.wantKind == "internal" {
				assert.Equal(t, "internal error", payload.Message, "internal details are not leaked")
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method   string
		path     string
		body     string
		wantCall string
		wantCode int
	}{
		{method: http.MethodPost, path: "/api/shopping-requests", body: `{"items":[{"name":"Milk","quantity":2}]}`, wantCall: "create", wantCode: http.StatusCreated},
		{method: http.MethodGet, path: "/api/shopping-requests/pending", wantCall: "pending", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/api/shopping-requests/customer/my-requests", wantCall: "customer", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/api/shopping-requests/shopper/my-requests", wantCall: "shopper", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/api/shopping-requests/7", wantCall: "get", wantCode: http.StatusOK},
		{method: http.MethodPut, path: "/api/shopping-requests/7", body: `{"store_name":"Mercadona"}`, wantCall: "update", wantCode: http.StatusOK},
		{method: http.MethodPost, path: "/api/shopping-requests/7/accept", wantCall: "accept", wantCode: http.StatusOK},
		{method: http.MethodPost, path: "/api/shopping-requests/7/start-shopping", wantCall: "start", wantCode: http.StatusOK},
		{method: http.MethodPost, path: "/api/shopping-requests/7/complete", wantCall: "complete", wantCode: http.StatusOK},
		{method: http.MethodPost, path: "/api/shopping-requests/7/abandon", wantCall: "abandon", wantCode: http.StatusOK},
		{method: http.MethodPost, path: "/api/shopping-requests/7/cancel", wantCall: "cancel", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/api/shopper/balance", wantCall: "balance", wantCode: http.StatusOK},
		{method: http.MethodGet, path: "/api/payment/7/authorize?redirect_status=succeeded", wantCall: "authorize", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			svc := &stubService{}
			h := New(svc, Config{}, quietLogger()).Routes()

			rec := do(t, h, tt.method, tt.path, "customer", "ana@example.com", []byte(tt.body))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, []string{tt.wantCall}, svc.calls)
			assert.NotEmpty(t, rec.Header().Get(headerRequestID))
		})
	}
}

func TestRequestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		role       string
		email      string
		body       string
		wantStatus int
		wantKind   string
	}{
		{name: "missing identity", method: http.MethodGet, path: "/api/shopping-requests/pending", wantStatus: http.StatusUnauthorized, wantKind: "unauthenticated"},
		{name: "unknown user", method: http.MethodGet, path: "/api/shopping-requests/pending", role: "customer", email: "ghost@example.com", wantStatus: http.StatusNotFound, wantKind: "not_found"},
		{name: "bad id", method: http.MethodPost, path: "/api/shopping-requests/abc/accept", role: "shopper", email: "sam@example.com", wantStatus: http.StatusBadRequest, wantKind: "bad_request"},
		{name: "invalid json", method: http.MethodPost, path: "/api/shopping-requests", role: "customer", email: "ana@example.com", body: `{"items":`, wantStatus: http.StatusBadRequest, wantKind: "bad_request"},
		{name: "unknown field", method: http.MethodPost, path: "/api/shopping-requests", role: "customer", email: "ana@example.com", body: `{"tip":5}`, wantStatus: http.StatusBadRequest, wantKind: "bad_request"},
		{name: "trailing data", method: http.MethodPost, path: "/api/shopping-requests", role: "customer", email: "ana@example.com", body: `{}{}`, wantStatus: http.StatusBadRequest, wantKind: "bad_request"},
		{name: "redirect not succeeded", method: http.MethodGet, path: "/api/payment/7/authorize?redirect_status=failed", wantStatus: http.StatusBadRequest, wantKind: "payment_failure"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubService{}
			h := New(svc, Config{}, quietLogger()).Routes()

			rec := do(t, h, tt.method, tt.path, tt.role, tt.email, []byte(tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantKind, decodeError(t, rec).Kind)
			assert.Empty(t, svc.calls)
		})
	}
}

func TestBalanceIsFormatted(t *testing.T) {
	t.Parallel()
	h := New(&stubService{}, Config{}, quietLogger()).Routes()

	rec := do(t, h, http.MethodGet, "/api/shopper/balance", "shopper", "sam@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"balance":"60.10"}`, rec.Body.String())
}

func TestHealthAndPublicKey(t *testing.T) {
	t.Parallel()

	healthy := New(&stubService{}, Config{PublishableKey: "pk_test_123"}, quietLogger()).Routes()
	rec := do(t, healthy, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, healthy, http.MethodGet, "/api/payment/public-key", "", "", nil)
	assert.JSONEq(t, `{"publishable_key":"pk_test_123"}`, rec.Body.String())

	down := New(&stubService{}, Config{Ping: func(context.Context) error { return errors.New("db locked") }}, quietLogger()).Routes()
	rec = do(t, down, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(t, down, http.MethodGet, "/api/payment/public-key", "", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- end-to-end test against the real lifecycle ---

func TestShoppingFlowOverHTTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	for _, u := range []struct {
		email string
		role  models.Role
	}{{"ana@example.com", models.RoleCustomer}, {"sam@example.com", models.RoleShopper}} {
		user := models.User{Email: u.email}
		require.NoError(t, database.CreateUser(ctx, &user))
		if u.role == models.RoleCustomer {
			_, err = database.AddCustomer(ctx, user)
		} else {
			_, err = database.AddShopper(ctx, user)
		}
		require.NoError(t, err)
	}

	gw := gateway.NewFake()
	ledger := payment.New(database, gw, payment.Config{CallTimeout: time.Second}, quietLogger())
	mgr := lifecycle.NewManager(database, ledger, nil, nil, lifecycle.Config{MinDeliveryFee: decimal.RequireFromString("8")}, quietLogger())
	h := New(mgr, Config{Ping: database.Ping}, quietLogger()).Routes()

	body := `{"items":[{"name":"Milk","quantity":2}],"delivery_address":"Calle 1, Zaragoza","estimated_price":"50.00","delivery_fee":10}`
	rec := do(t, h, http.MethodPost, "/api/shopping-requests", "customer", "ana@example.com", []byte(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.RequestDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotEmpty(t, created.PaymentIntentID)
	assert.NotEmpty(t, created.PaymentClientSecret)
	path := fmt.Sprintf("/api/shopping-requests/%d", created.ID)

	rec = do(t, h, http.MethodPost, path+"/accept", "shopper", "sam@example.com", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "payment is not authorized yet")

	require.NoError(t, gw.Confirm(created.PaymentIntentID))
	rec = do(t, h, http.MethodGet, fmt.Sprintf("/api/payment/%d/authorize?redirect_status=succeeded", created.ID), "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, step := range []string{"/accept", "/start-shopping", "/complete"} {
		rec = do(t, h, http.MethodPost, path+step, "shopper", "sam@example.com", nil)
		require.Equal(t, http.StatusOK, rec.Code, step+": "+rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, path, "customer", "ana@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var done models.RequestDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&done))
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, models.PaymentCompleted, done.PaymentStatus)

	rec = do(t, h, http.MethodGet, "/api/shopper/balance", "shopper", "sam@example.com", nil)
	assert.JSONEq(t, `{"balance":"60.00"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, path+"/cancel", "customer", "ana@example.com", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
