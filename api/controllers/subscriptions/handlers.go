package subscriptions

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jaehyunUm/mats-backend-sub000/api/controllers/dojangcontext"
	"github.com/jaehyunUm/mats-backend-sub000/api/responses"
	"github.com/jaehyunUm/mats-backend-sub000/api/validators"
	"github.com/jaehyunUm/mats-backend-sub000/internal/billing"
	subsvc "github.com/jaehyunUm/mats-backend-sub000/internal/subscriptions"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/pagination"
)

type createRequest struct {
	StudentID  uuid.UUID        `json:"student_id" validate:"required"`
	ProgramID  uuid.UUID        `json:"program_id" validate:"required"`
	Fee        *decimal.Decimal `json:"fee,omitempty"`
	Currency   string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	AnchorDay  int              `json:"anchor_day,omitempty" validate:"omitempty,min=1,max=31"`
	StartDate  string           `json:"start_date,omitempty"`
	SourceID   string           `json:"source_id,omitempty" validate:"max=255"`
	CustomerID string           `json:"customer_id,omitempty" validate:"max=255"`
}

type paymentMethodRequest struct {
	SourceID string `json:"source_id" validate:"required,max=255"`
}

func Create(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		dojangCode, err := dojangcontext.ResolveDojangCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := subsvc.CreateInput{
			StudentID:  payload.StudentID,
			ProgramID:  payload.ProgramID,
			Fee:        payload.Fee,
			Currency:   payload.Currency,
			AnchorDay:  payload.AnchorDay,
			SourceID:   validators.SanitizeString(payload.SourceID, 255),
			CustomerID: validators.SanitizeString(payload.CustomerID, 255),
		}
		if raw := strings.TrimSpace(payload.StartDate); raw != "" {
			start, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
					WithDetails(map[string]string{"start_date": "must be YYYY-MM-DD"}))
				return
			}
			input.StartDate = &start
		}

		sub, err := svc.Create(r.Context(), dojangCode, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sub)
	}
}

func List(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		dojangCode, err := dojangcontext.ResolveDojangCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		studentID, err := validators.ParseQueryUUID(r, "student_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), dojangCode, subsvc.ListParams{
			StudentID: studentID,
			Limit:     limit,
			Cursor:    strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Get(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		dojangCode, id, err := resolveTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Get(r.Context(), dojangCode, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

func UpdatePaymentMethod(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		dojangCode, id, err := resolveTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentMethodRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.UpdatePaymentMethod(r.Context(), dojangCode, id, subsvc.PaymentMethodInput{
			SourceID: validators.SanitizeString(payload.SourceID, 255),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// Charge runs one billing attempt now under the same lease as the scheduler.
// A declined attempt answers 402 with the outcome in the error details.
func Charge(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		dojangCode, id, err := resolveTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Charge(r.Context(), dojangCode, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if outcome.Status == billing.OutcomeFailed {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodePaymentFailed, outcome.Reason).WithDetails(outcome))
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

func History(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		dojangCode, id, err := resolveTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.History(r.Context(), dojangCode, id, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// TenantPayments lists every settled payment of the caller's dojang.
func TenantPayments(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		dojangCode, err := dojangcontext.ResolveDojangCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.TenantPayments(r.Context(), dojangCode, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func resolveTarget(r *http.Request) (string, uuid.UUID, error) {
	dojangCode, err := dojangcontext.ResolveDojangCode(r)
	if err != nil {
		return "", uuid.Nil, err
	}
	id, err := validators.ParsePathUUID(r, "id")
	if err != nil {
		return "", uuid.Nil, err
	}
	return dojangCode, id, nil
}

func pageParams(r *http.Request) (subsvc.PageParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return subsvc.PageParams{}, err
	}
	return subsvc.PageParams{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
