package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskhive/platform/internal/registry"
)

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// notFoundHandler answers every unmatched route with a JSON body naming the
// method and path that missed.
func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"detail": fmt.Sprintf("Endpoint '%s %s' not found", r.Method, r.URL.Path),
	})
}

func listServicesHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"services": reg.Snapshot()})
	}
}

type registerRequest struct {
	Address string `json:"address"`
}

func registerServiceHandler(reg *registry.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if _, err := url.ParseRequestURI(req.Address); err != nil {
			writeJSONError(w, http.StatusBadRequest, "address must be a valid URL")
			return
		}

		reg.Register(name, req.Address)
		logger.Info("service registered", "name", name, "address", req.Address)
		writeJSON(w, http.StatusOK, map[string]string{"name": name, "address": req.Address})
	}
}

func unregisterServiceHandler(reg *registry.Registry, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		reg.Unregister(name)
		logger.Info("service unregistered", "name", name)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
