// Package httpapi exposes the shopping request lifecycle over HTTP.
//
// Callers are identified by the X-User-Email and X-User-Role headers, which
// an authenticating proxy is expected to set. Failures are returned as
// {"error": {"kind": ..., "message": ...}} with a status derived from the
// error kind.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/centromex/shopping-buddy/internal/lifecycle"
	"github.com/centromex/shopping-buddy/internal/models"
)

type lifecycleService interface {
	ResolveActor(ctx context.Context, role models.Role, email string) (models.Actor, error)

	Create(ctx context.Context, a models.Actor, in lifecycle.RequestInput) (*models.RequestDetails, error)
	Get(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	ListPending(ctx context.Context, a models.Actor) ([]models.RequestDetails, error)
	ListForCustomer(ctx context.Context, a models.Actor) ([]models.RequestDetails, error)
	ListForShopper(ctx context.Context, a models.Actor) ([]models.RequestDetails, error)
	Accept(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	StartShopping(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	Complete(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	Abandon(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	Cancel(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)
	Update(ctx context.Context, a models.Actor, id int64, in lifecycle.RequestInput) (*models.RequestDetails, error)
	AuthorizePayment(ctx context.Context, id int64) (*models.ShoppingRequest, error)
	ShopperBalance(ctx context.Context, a models.Actor) (decimal.Decimal, error)
}

type Config struct {
	// RequestTimeout bounds each request, including gateway calls.
	RequestTimeout time.Duration
	// PublishableKey is handed to clients that confirm cards themselves.
	PublishableKey string
	// Ping reports whether the backing store is reachable.
	Ping func(ctx context.Context) error
}

// Handler serves the lifecycle API.
type Handler struct {
	svc            lifecycleService
	requestTimeout time.Duration
	publishableKey string
	ping           func(ctx context.Context) error
	log            *slog.Logger
}

// New returns a Handler for svc. It panics if svc is nil. A non-positive
// timeout is replaced by a default.
func New(svc lifecycleService, cfg Config, logger *slog.Logger) *Handler {
	if svc == nil {
		panic("httpapi.New: nil lifecycle service")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:            svc,
		requestTimeout: cfg.RequestTimeout,
		publishableKey: cfg.PublishableKey,
		ping:           cfg.Ping,
		log:            logger.With("component", "httpapi"),
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogging(h.log))
	r.Use(h.withTimeout)

	r.Get("/health", h.health)

	r.Route("/api/payment", func(r chi.Router) {
		r.Get("/public-key", h.publicKey)
		r.Get("/{id}/authorize", h.authorizePayment)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.identify)

		r.Route("/api/shopping-requests", func(r chi.Router) {
			r.Post("/", h.create)
			r.Get("/pending", h.list(h.svc.ListPending))
			r.Get("/customer/my-requests", h.list(h.svc.ListForCustomer))
			r.Get("/shopper/my-requests", h.list(h.svc.ListForShopper))
			r.Get("/{id}", h.transition(h.svc.Get))
			r.Put("/{id}", h.update)
			r.Post("/{id}/accept", h.transition(h.svc.Accept))
			r.Post("/{id}/start-shopping", h.transition(h.svc.StartShopping))
			r.Post("/{id}/complete", h.transition(h.svc.Complete))
			r.Post("/{id}/abandon", h.transition(h.svc.Abandon))
			r.Post("/{id}/cancel", h.transition(h.svc.Cancel))
		})

		r.Get("/api/shopper/balance", h.balance)
	})

	return r
}

func (h *Handler) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.log.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) publicKey(w http.ResponseWriter, r *http.Request) {
	if h.publishableKey == "" {
		h.log.Error("payment publishable key is not configured")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: ErrorPayload{Kind: "internal", Message: "payment configuration error"},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publishable_key": h.publishableKey})
}

// authorizePayment is the target of the card confirmation redirect.
func (h *Handler) authorizePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	status := r.URL.Query().Get("redirect_status")
	h.log.Info("payment authorization callback", "request_id", id, "redirect_status", status)

	if status != "succeeded" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: ErrorPayload{Kind: "payment_failure", Message: "authorization_failed"},
		})
		return
	}

	req, err := h.svc.AuthorizePayment(r.Context(), id)
	if err != nil {
		h.log.Error("payment authorization failed", "request_id", id, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	a, _ := actorFrom(r.Context())

	var in lifecycle.RequestInput
	if !decode(w, r, &in) {
		return
	}

	d, err := h.svc.Create(r.Context(), a, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	a, _ := actorFrom(r.Context())
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	var in lifecycle.RequestInput
	if !decode(w, r, &in) {
		return
	}

	d, err := h.svc.Update(r.Context(), a, id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	a, _ := actorFrom(r.Context())

	b, err := h.svc.ShopperBalance(r.Context(), a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": models.FormatMoney(b)})
}

type listFunc func(ctx context.Context, a models.Actor) ([]models.RequestDetails, error)

func (h *Handler) list(fn listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, _ := actorFrom(r.Context())

		reqs, err := fn(r.Context(), a)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)
	}
}

type transitionFunc func(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error)

// transition serves the operations that target one request by path id.
func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, _ := actorFrom(r.Context())
		id, ok := requestID(w, r)
		if !ok {
			return
		}

		d, err := fn(r.Context(), a, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid shopping request id")
		return 0, false
	}
	return id, true
}

// decode reads exactly one JSON object into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON")
		return false
	}
	return true
}
