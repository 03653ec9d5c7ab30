package controllers

import (
	"net/http"

	"github.com/osoriodev/vendelo-backend/api/middleware"
	"github.com/osoriodev/vendelo-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if client := middleware.ClientIDFromContext(r.Context()); client != "" {
			payload["client_id"] = client
		}
		responses.WriteSuccess(w, payload)
	}
}
