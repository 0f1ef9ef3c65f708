package directory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taskhive/platform/internal/domain"
	"github.com/taskhive/platform/internal/domain/tenant"
	"github.com/taskhive/platform/internal/middleware"
)

// Handler exposes the directory service over HTTP.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates an HTTP handler for the directory service.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes builds the directory router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(h.logger))

	r.Get("/health", h.health)
	r.Get("/resolve/{subdomain}", h.resolveSubdomain)

	r.Route("/tenants", func(r chi.Router) {
		r.Post("/", h.createTenant)
		r.Get("/", h.listTenants)
		r.Get("/{id}", h.getTenant)
		r.Get("/{id}/database", h.tenantDatabase)
		r.Post("/{id}/migrations", h.applyMigrations)
		r.Delete("/{id}", h.deactivateTenant)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "tenant-directory"})
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var req tenant.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.svc.CreateTenant(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrDuplicateTenant):
			writeError(w, http.StatusConflict, "subdomain already registered")
		default:
			h.logger.Error("create tenant", "error", err)
			writeError(w, http.StatusInternalServerError, "tenant provisioning failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.ListTenants(r.Context())
	if err != nil {
		h.logger.Error("list tenants", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error("get tenant", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// tenantDatabase returns a tenant's database coordinates including the
// provisioned credential. This is the only place the credential leaves the
// directory; it never appears in the tenant resource itself or in logs.
func (h *Handler) tenantDatabase(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error("get tenant database", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"db_host":     t.Database.Host,
		"db_port":     t.Database.Port,
		"db_name":     t.Database.Name,
		"db_user":     t.Database.User,
		"db_password": t.Database.Password,
	})
}

func (h *Handler) applyMigrations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.ApplyMigrations(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error("apply migrations", "tenant_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "migration failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "migrations applied",
		"tenant_id": id,
	})
}

func (h *Handler) deactivateTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeactivateTenant(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error("deactivate tenant", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolveSubdomain(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.ResolveSubdomain(r.Context(), chi.URLParam(r, "subdomain"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subdomain not registered")
			return
		}
		h.logger.Error("resolve subdomain", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"tenant_id": t.ID,
		"subdomain": t.Subdomain,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
