package accounts

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jaehyunUm/mats-backend-sub000/api/controllers/dojangcontext"
	"github.com/jaehyunUm/mats-backend-sub000/api/responses"
	accountsvc "github.com/jaehyunUm/mats-backend-sub000/internal/accounts"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
)

type authorizeResponse struct {
	URL string `json:"url"`
}

// Authorize returns the provider consent URL carrying a signed state for the caller's dojang.
func Authorize(svc accountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		dojangCode, err := dojangcontext.ResolveDojangCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := providerParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		url, err := svc.AuthorizeURL(r.Context(), dojangCode, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, authorizeResponse{URL: url})
	}
}

// Callback completes the OAuth round trip. It is public: the tenant comes
// from the signed state, never from the caller.
func Callback(svc accountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		provider, err := providerParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		if denied := strings.TrimSpace(query.Get("error")); denied != "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "authorization was not granted").
				WithDetails(map[string]string{"error": denied, "error_description": query.Get("error_description")}))
			return
		}

		status, err := svc.CompleteOAuth(r.Context(), provider, strings.TrimSpace(query.Get("code")), strings.TrimSpace(query.Get("state")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func Status(svc accountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		dojangCode, err := dojangcontext.ResolveDojangCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.Status(r.Context(), dojangCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func Refresh(svc accountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		dojangCode, err := dojangcontext.ResolveDojangCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Refresh(r.Context(), dojangCode); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.Status(r.Context(), dojangCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func Disconnect(svc accountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		dojangCode, err := dojangcontext.ResolveDojangCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Disconnect(r.Context(), dojangCode); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func providerParam(r *http.Request) (enums.PaymentProvider, error) {
	raw := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, err := enums.ParsePaymentProvider(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment provider")
	}
	return provider, nil
}
