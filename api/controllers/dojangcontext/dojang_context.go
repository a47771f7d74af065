package dojangcontext

import (
	"net/http"

	"github.com/jaehyunUm/mats-backend-sub000/api/middleware"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
)

// ResolveDojangCode extracts the tenant the authenticated caller acts for.
func ResolveDojangCode(r *http.Request) (string, error) {
	code := middleware.DojangCodeFromContext(r.Context())
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "dojang context required")
	}
	return code, nil
}
