package accounts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jaehyunUm/mats-backend-sub000/api/middleware"
	accountsvc "github.com/jaehyunUm/mats-backend-sub000/internal/accounts"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
)

type stubAccounts struct {
	authorizeProvider enums.PaymentProvider
	completeCode      string
	completeState     string
	refreshed         string
	disconnected      string
	err               error
}

func (s *stubAccounts) AuthorizeURL(ctx context.Context, dojangCode string, provider enums.PaymentProvider) (string, error) {
	s.authorizeProvider = provider
	return "https://connect.example.com/oauth?state=signed", s.err
}

func (s *stubAccounts) CompleteOAuth(ctx context.Context, provider enums.PaymentProvider, code, state string) (*accountsvc.AccountStatus, error) {
	s.completeCode, s.completeState = code, state
	if s.err != nil {
		return nil, s.err
	}
	return &accountsvc.AccountStatus{Connected: true, Provider: &provider}, nil
}

func (s *stubAccounts) Refresh(ctx context.Context, dojangCode string) error {
	s.refreshed = dojangCode
	return s.err
}

func (s *stubAccounts) RefreshExpiring(ctx context.Context, within time.Duration) (int, error) {
	return 0, nil
}

func (s *stubAccounts) Status(ctx context.Context, dojangCode string) (*accountsvc.AccountStatus, error) {
	return &accountsvc.AccountStatus{Connected: s.disconnected == ""}, nil
}

func (s *stubAccounts) Disconnect(ctx context.Context, dojangCode string) error {
	if s.err != nil {
		return s.err
	}
	s.disconnected = dojangCode
	return nil
}

func (s *stubAccounts) DisconnectByConnectedAccount(ctx context.Context, provider enums.PaymentProvider, accountID string) (string, error) {
	return "", nil
}

func newRouter(svc accountsvc.Service) http.Handler {
	r := chi.NewRouter()
	withTenant := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			next(w, req.WithContext(middleware.WithDojangCode(req.Context(), "DJ001")))
		}
	}
	r.Get("/accounts/{provider}/authorize", withTenant(Authorize(svc, nil)))
	r.Get("/accounts/{provider}/callback", Callback(svc, nil))
	r.Get("/accounts", withTenant(Status(svc, nil)))
	r.Post("/accounts/refresh", withTenant(Refresh(svc, nil)))
	r.Delete("/accounts", withTenant(Disconnect(svc, nil)))
	return r
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestAuthorize(t *testing.T) {
	svc := &stubAccounts{}
	rec := serve(newRouter(svc), http.MethodGet, "/accounts/Square/authorize")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.authorizeProvider != enums.PaymentProviderSquare {
		t.Fatalf("expected square, got %s", svc.authorizeProvider)
	}
	var body struct {
		Data authorizeResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.URL == "" {
		t.Fatal("expected url")
	}
}

func TestAuthorizeUnknownProvider(t *testing.T) {
	rec := serve(newRouter(&stubAccounts{}), http.MethodGet, "/accounts/paypal/authorize")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCallbackPassesCodeAndState(t *testing.T) {
	svc := &stubAccounts{}
	rec := serve(newRouter(svc), http.MethodGet, "/accounts/stripe/callback?code=ac_123&state=signed-state")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.completeCode != "ac_123" || svc.completeState != "signed-state" {
		t.Fatalf("unexpected passthrough %q %q", svc.completeCode, svc.completeState)
	}
}

func TestCallbackDenied(t *testing.T) {
	svc := &stubAccounts{}
	rec := serve(newRouter(svc), http.MethodGet, "/accounts/stripe/callback?error=access_denied&state=s")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.completeState != "" {
		t.Fatal("service should not be called when consent was denied")
	}
}

func TestCallbackInvalidState(t *testing.T) {
	svc := &stubAccounts{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid oauth state")}
	rec := serve(newRouter(svc), http.MethodGet, "/accounts/stripe/callback?code=ac_1&state=forged")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefreshAndDisconnect(t *testing.T) {
	svc := &stubAccounts{}
	h := newRouter(svc)

	if rec := serve(h, http.MethodPost, "/accounts/refresh"); rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", rec.Code)
	}
	if svc.refreshed != "DJ001" {
		t.Fatalf("expected refresh for DJ001, got %q", svc.refreshed)
	}
	if rec := serve(h, http.MethodDelete, "/accounts"); rec.Code != http.StatusNoContent {
		t.Fatalf("disconnect: expected 204, got %d", rec.Code)
	}
	if svc.disconnected != "DJ001" {
		t.Fatalf("expected disconnect for DJ001, got %q", svc.disconnected)
	}
}

func TestRefreshNotConnected(t *testing.T) {
	svc := &stubAccounts{err: pkgerrors.New(pkgerrors.CodeNotConnected, "no payment account connected")}
	rec := serve(newRouter(svc), http.MethodPost, "/accounts/refresh")
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", rec.Code)
	}
}
