package controllers

import (
	"net/http"

	"github.com/jaehyunUm/mats-backend-sub000/api/middleware"
	"github.com/jaehyunUm/mats-backend-sub000/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// PrivatePing echoes the tenant resolved from the caller's token.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if code := middleware.DojangCodeFromContext(r.Context()); code != "" {
			payload["dojang_code"] = code
		}
		if role := middleware.RoleFromContext(r.Context()); role != "" {
			payload["role"] = role
		}
		responses.WriteSuccess(w, payload)
	}
}
