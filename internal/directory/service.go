// Package directory implements the tenant directory: the control-plane
// record of every tenant and the provisioning workflow that backs it.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/platform/internal/domain"
	"github.com/taskhive/platform/internal/domain/tenant"
	"github.com/taskhive/platform/internal/events"
)

// TenantStore is the persistence surface the service needs.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	DeactivateTenant(ctx context.Context, id string) error
}

// Provisioner creates and tears down per-tenant database resources and
// applies schema migrations to an existing tenant database.
type Provisioner interface {
	Provision(ctx context.Context, tenantID string) (tenant.Coordinates, error)
	Deprovision(ctx context.Context, tenantID string) error
	Migrate(ctx context.Context, coords tenant.Coordinates) error
}

// EventPublisher emits tenant lifecycle events. Publishing is best effort:
// a failed publish never fails the operation that triggered it.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Service coordinates tenant creation: directory record, database
// provisioning, and lifecycle events.
type Service struct {
	store  TenantStore
	prov   Provisioner
	pub    EventPublisher
	logger *slog.Logger
	now    func() time.Time // for testing
}

// NewService creates a directory service. pub may be nil when no event bus
// is configured.
func NewService(store TenantStore, prov Provisioner, pub EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		prov:   prov,
		pub:    pub,
		logger: logger,
		now:    time.Now,
	}
}

// tenantEvent is the payload published on tenant lifecycle subjects.
type tenantEvent struct {
	TenantID  string `json:"tenant_id"`
	Subdomain string `json:"subdomain"`
}

// CreateTenant registers a new tenant and provisions its database. The
// directory record is written only after provisioning succeeded, so a stored
// tenant always has a usable database behind it. If the record cannot be
// written the provisioned resources are torn down again.
func (s *Service) CreateTenant(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Check the subdomain before provisioning anything so the common
	// conflict case costs no database work.
	_, err := s.store.GetTenantBySubdomain(ctx, req.Subdomain)
	if err == nil {
		return nil, fmt.Errorf("subdomain %s: %w", req.Subdomain, domain.ErrDuplicateTenant)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check subdomain: %w", err)
	}

	id := uuid.NewString()
	coords, err := s.prov.Provision(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &tenant.Tenant{
		ID:        id,
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Database:  coords,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateTenant(ctx, t); err != nil {
		// The database exists but the directory will never reference it.
		// Tear it down so the failed create leaves nothing behind.
		if dErr := s.prov.Deprovision(ctx, id); dErr != nil {
			s.logger.Error("deprovision after failed persist",
				"tenant_id", id, "error", dErr)
		}
		return nil, err
	}

	s.publish(ctx, events.SubjectTenantCreated, t)
	s.logger.Info("tenant created",
		"tenant_id", t.ID, "subdomain", t.Subdomain, "database", t.Database.String())
	return t, nil
}

// GetTenant returns the tenant with the given id.
func (s *Service) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// ResolveSubdomain returns the active tenant registered under a subdomain.
// Deactivated tenants do not resolve.
func (s *Service) ResolveSubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	t, err := s.store.GetTenantBySubdomain(ctx, tenant.NormalizeSubdomain(subdomain))
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, fmt.Errorf("subdomain %s: %w", subdomain, domain.ErrNotFound)
	}
	return t, nil
}

// ListTenants returns all tenants, newest first.
func (s *Service) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// ApplyMigrations brings an existing tenant's database schema up to date.
// New tenants are migrated during provisioning; this covers tenants created
// before a schema change shipped.
func (s *Service) ApplyMigrations(ctx context.Context, id string) error {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if err := s.prov.Migrate(ctx, t.Database); err != nil {
		return fmt.Errorf("migrate tenant %s: %w", id, err)
	}
	s.logger.Info("tenant migrations applied", "tenant_id", id, "database", t.Database.String())
	return nil
}

// DeactivateTenant marks a tenant inactive. Its database is kept; only
// resolution and routing stop.
func (s *Service) DeactivateTenant(ctx context.Context, id string) error {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateTenant(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.SubjectTenantDeactivated, t)
	s.logger.Info("tenant deactivated", "tenant_id", id, "subdomain", t.Subdomain)
	return nil
}

func (s *Service) publish(ctx context.Context, subject string, t *tenant.Tenant) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(tenantEvent{TenantID: t.ID, Subdomain: t.Subdomain})
	if err != nil {
		s.logger.Warn("marshal tenant event", "subject", subject, "error", err)
		return
	}
	if err := s.pub.Publish(ctx, subject, data); err != nil {
		s.logger.Warn("publish tenant event", "subject", subject, "error", err)
	}
}
