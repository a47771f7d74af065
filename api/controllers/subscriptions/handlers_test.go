package subscriptions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jaehyunUm/mats-backend-sub000/api/middleware"
	"github.com/jaehyunUm/mats-backend-sub000/internal/billing"
	subsvc "github.com/jaehyunUm/mats-backend-sub000/internal/subscriptions"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
)

type stubService struct {
	createInput   subsvc.CreateInput
	createCode    string
	listParams    subsvc.ListParams
	getID         uuid.UUID
	methodInput   subsvc.PaymentMethodInput
	chargeOutcome *billing.Outcome
	historyParams subsvc.PageParams
	err           error
}

func (s *stubService) Create(ctx context.Context, dojangCode string, input subsvc.CreateInput) (*subsvc.Subscription, error) {
	s.createCode = dojangCode
	s.createInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &subsvc.Subscription{ID: uuid.New(), StudentID: input.StudentID, ProgramID: input.ProgramID}, nil
}

func (s *stubService) List(ctx context.Context, dojangCode string, params subsvc.ListParams) (*subsvc.ListResult, error) {
	s.listParams = params
	return &subsvc.ListResult{Items: []subsvc.Subscription{}}, s.err
}

func (s *stubService) Get(ctx context.Context, dojangCode string, id uuid.UUID) (*subsvc.Subscription, error) {
	s.getID = id
	if s.err != nil {
		return nil, s.err
	}
	return &subsvc.Subscription{ID: id}, nil
}

func (s *stubService) UpdatePaymentMethod(ctx context.Context, dojangCode string, id uuid.UUID, input subsvc.PaymentMethodInput) (*subsvc.Subscription, error) {
	s.methodInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &subsvc.Subscription{ID: id, HasPaymentMethod: true}, nil
}

func (s *stubService) Charge(ctx context.Context, dojangCode string, id uuid.UUID) (*billing.Outcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chargeOutcome, nil
}

func (s *stubService) History(ctx context.Context, dojangCode string, id uuid.UUID, params subsvc.PageParams) (*subsvc.PaymentsResult, error) {
	s.historyParams = params
	return &subsvc.PaymentsResult{Items: []subsvc.Payment{}}, s.err
}

func (s *stubService) TenantPayments(ctx context.Context, dojangCode string, params subsvc.PageParams) (*subsvc.PaymentsResult, error) {
	s.historyParams = params
	return &subsvc.PaymentsResult{Items: []subsvc.Payment{}}, s.err
}

func newRouter(svc subsvc.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if code := req.Header.Get("X-Test-Dojang"); code != "" {
				req = req.WithContext(middleware.WithDojangCode(req.Context(), code))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/subscriptions", Create(svc, nil))
	r.Get("/subscriptions", List(svc, nil))
	r.Get("/subscriptions/{id}", Get(svc, nil))
	r.Put("/subscriptions/{id}/payment-method", UpdatePaymentMethod(svc, nil))
	r.Post("/subscriptions/{id}/charge", Charge(svc, nil))
	r.Get("/subscriptions/{id}/payments", History(svc, nil))
	r.Get("/payments", TenantPayments(svc, nil))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Test-Dojang", "DJ001")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

func TestCreate(t *testing.T) {
	svc := &stubService{}
	studentID, programID := uuid.New(), uuid.New()
	body := `{"student_id":"` + studentID.String() + `","program_id":"` + programID.String() + `","fee":"99.50","anchor_day":31,"start_date":"2024-01-10","source_id":" pm_card_visa "}`

	rec := do(t, newRouter(svc), http.MethodPost, "/subscriptions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.createCode != "DJ001" {
		t.Fatalf("expected tenant DJ001, got %q", svc.createCode)
	}
	in := svc.createInput
	if in.StudentID != studentID || in.ProgramID != programID {
		t.Fatalf("unexpected ids %+v", in)
	}
	if in.Fee == nil || !in.Fee.Equal(decimal.RequireFromString("99.50")) {
		t.Fatalf("unexpected fee %v", in.Fee)
	}
	if in.AnchorDay != 31 || in.SourceID != "pm_card_visa" {
		t.Fatalf("unexpected input %+v", in)
	}
	if in.StartDate == nil || !in.StartDate.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start date %v", in.StartDate)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := &stubService{}
	h := newRouter(svc)

	cases := map[string]string{
		"missing program": `{"student_id":"` + uuid.NewString() + `"}`,
		"anchor too big":  `{"student_id":"` + uuid.NewString() + `","program_id":"` + uuid.NewString() + `","anchor_day":32}`,
		"bad start date":  `{"student_id":"` + uuid.NewString() + `","program_id":"` + uuid.NewString() + `","start_date":"01/10/2024"}`,
		"unknown field":   `{"student_id":"` + uuid.NewString() + `","program_id":"` + uuid.NewString() + `","plan":"gold"}`,
	}
	for name, body := range cases {
		rec := do(t, h, http.MethodPost, "/subscriptions", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestCreateRequiresTenant(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	newRouter(&stubService{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestListParsesQuery(t *testing.T) {
	svc := &stubService{}
	studentID := uuid.New()
	rec := do(t, newRouter(svc), http.MethodGet, "/subscriptions?limit=10&cursor=abc&student_id="+studentID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.listParams.Limit != 10 || svc.listParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.listParams)
	}
	if svc.listParams.StudentID == nil || *svc.listParams.StudentID != studentID {
		t.Fatalf("expected student filter")
	}

	rec = do(t, newRouter(svc), http.MethodGet, "/subscriptions?limit=1000", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit out of range, got %d", rec.Code)
	}
}

func TestGetInvalidID(t *testing.T) {
	rec := do(t, newRouter(&stubService{}), http.MethodGet, "/subscriptions/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetNotFound(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")}
	rec := do(t, newRouter(svc), http.MethodGet, "/subscriptions/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpdatePaymentMethod(t *testing.T) {
	svc := &stubService{}
	id := uuid.New()
	rec := do(t, newRouter(svc), http.MethodPut, "/subscriptions/"+id.String()+"/payment-method", `{"source_id":"cnon:card-nonce-ok"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.methodInput.SourceID != "cnon:card-nonce-ok" {
		t.Fatalf("unexpected source %q", svc.methodInput.SourceID)
	}

	rec = do(t, newRouter(svc), http.MethodPut, "/subscriptions/"+id.String()+"/payment-method", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without source_id, got %d", rec.Code)
	}
}

func TestUpdatePaymentMethodNotConnected(t *testing.T) {
	svc := &stubService{err: pkgerrors.New(pkgerrors.CodeNotConnected, "connect a payment account first")}
	rec := do(t, newRouter(svc), http.MethodPut, "/subscriptions/"+uuid.NewString()+"/payment-method", `{"source_id":"pm_card_visa"}`)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeNotConnected) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestChargeOutcomes(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name    string
		outcome billing.Outcome
		want    int
	}{
		{"succeeded", billing.Outcome{SubscriptionID: id, Status: billing.OutcomeSucceeded, TransactionID: "pi_1"}, http.StatusOK},
		{"skipped", billing.Outcome{SubscriptionID: id, Status: billing.OutcomeSkipped, Reason: "subscription is not due"}, http.StatusOK},
		{"failed", billing.Outcome{SubscriptionID: id, Status: billing.OutcomeFailed, Reason: "card declined"}, http.StatusPaymentRequired},
	}
	for _, tc := range cases {
		outcome := tc.outcome
		svc := &stubService{chargeOutcome: &outcome}
		rec := do(t, newRouter(svc), http.MethodPost, "/subscriptions/"+id.String()+"/charge", "")
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestHistoryAndTenantPayments(t *testing.T) {
	svc := &stubService{}
	rec := do(t, newRouter(svc), http.MethodGet, "/subscriptions/"+uuid.NewString()+"/payments?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.historyParams.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", svc.historyParams.Limit)
	}

	rec = do(t, newRouter(svc), http.MethodGet, "/payments?cursor=next", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.historyParams.Cursor != "next" {
		t.Fatalf("expected cursor passthrough, got %q", svc.historyParams.Cursor)
	}
}
