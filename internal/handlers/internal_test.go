package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/northline-logistics/api/internal/platform/auth"
	"github.com/northline-logistics/api/internal/platform/idempotency"
	"github.com/northline-logistics/api/internal/platform/requestctx"
	"github.com/northline-logistics/api/internal/services"
)

func asService(req *http.Request, email string) *http.Request {
	ctx := auth.WithServiceIdentity(req.Context(), &auth.ServiceIdentity{Subject: "1234", Email: email})
	return req.WithContext(ctx)
}

func TestInternalHandlersScanAndUpdate(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	var token, actor string
	svc := &stubOrderService{
		tokenFn: func(_ context.Context, value string) (services.OrderView, error) {
			token = value
			view := sampleView(now)
			view.OmitLogs = true
			return view, nil
		},
		updateFn: func(_ context.Context, cmd services.UpdateOrderCommand) (services.OrderView, error) {
			actor = cmd.ActorID
			return sampleView(now), nil
		},
	}
	router := chi.NewRouter()
	router.Route("/internal", NewInternalHandlers(svc).Routes)

	req := asService(httptest.NewRequest(http.MethodGet, "/internal/orders/token/tok-1", nil), "scanner@northline.iam.gserviceaccount.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || token != "tok-1" {
		t.Fatalf("expected scan to succeed, got %d token=%q", rr.Code, token)
	}

	req = asService(httptest.NewRequest(http.MethodPatch, "/internal/orders/ord_1", strings.NewReader(`{"order_status":"pickup"}`)), "scanner@northline.iam.gserviceaccount.com")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected update to succeed, got %d: %s", rr.Code, rr.Body.String())
	}
	if actor != "service:scanner@northline.iam.gserviceaccount.com" {
		t.Fatalf("unexpected actor %q", actor)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/internal/orders/token/tok-1", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without service identity, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateIsIdempotent(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	var calls int
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.OrderView, error) {
			calls++
			return sampleView(now), nil
		},
	}
	mw := idempotency.Middleware(idempotency.NewMemoryStore(), idempotency.WithClock(func() time.Time { return now }))
	router := newOrderRouter(t, svc, WithOrderCreateMiddleware(mw))

	send := func() *httptest.ResponseRecorder {
		req := asUser(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"receiver":"cus_1"}`)), "usr_owner", auth.RoleClient)
		req = req.WithContext(requestctx.WithActor(req.Context(), requestctx.Actor{ID: "usr_owner", Kind: "user"}))
		req.Header.Set("Idempotency-Key", "create-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	second := send()
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both responses 201, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one order to be created, got %d", calls)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header on second response")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies")
	}
}

func TestKeyedLimiterRefillsPerCaller(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	limiter := newKeyedLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("expected first two requests to pass")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected the third burst request to be refused")
	}
	if !limiter.Allow("b") {
		t.Fatalf("expected separate callers to have separate buckets")
	}
	now = now.Add(61 * time.Second)
	if !limiter.Allow("a") {
		t.Fatalf("expected the bucket to refill after a window")
	}
	if newKeyedLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("expected a disabled limiter for a zero limit")
	}
}
