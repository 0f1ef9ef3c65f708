// Package provision creates the isolated database, restricted principal and
// baseline schema a new tenant needs before it can serve traffic.
package provision

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/taskhive/platform/internal/config"
	"github.com/taskhive/platform/internal/domain/tenant"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Provisioner provisions tenant databases through an administrative
// connection. The multi-step sequence spans DDL that cannot share a
// transaction, so failure handling is the compensating unwind in saga.go.
type Provisioner struct {
	admin  *pgxpool.Pool
	cfg    config.Provision
	logger *slog.Logger
}

// New creates a provisioner using the given administrative pool.
func New(admin *pgxpool.Pool, cfg config.Provision, logger *slog.Logger) *Provisioner {
	return &Provisioner{admin: admin, cfg: cfg, logger: logger}
}

// Provision creates the tenant's database, a login role restricted to it,
// and applies the baseline schema with the new role's credential. On any
// failure the completed steps are unwound before the error propagates; no
// named resource stays claimed without a usable tenant behind it.
func (p *Provisioner) Provision(ctx context.Context, tenantID string) (tenant.Coordinates, error) {
	dbName := DatabaseName(tenantID)
	roleName := dbName + "_app"

	password, err := generateSecret()
	if err != nil {
		return tenant.Coordinates{}, fmt.Errorf("generate secret: %w", err)
	}

	coords := tenant.Coordinates{
		Host:     p.cfg.TenantHost,
		Port:     p.cfg.TenantPort,
		Name:     dbName,
		User:     roleName,
		Password: password,
	}

	steps := []step{
		{
			name: "create-database",
			run: func(ctx context.Context) error {
				_, err := p.admin.Exec(ctx, "CREATE DATABASE "+ident(dbName))
				return err
			},
			undo: func(ctx context.Context) error { return p.dropDatabase(ctx, dbName) },
		},
		{
			name: "create-role",
			run: func(ctx context.Context) error {
				_, err := p.admin.Exec(ctx,
					fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s", ident(roleName), literal(password)))
				return err
			},
			undo: func(ctx context.Context) error {
				_, err := p.admin.Exec(ctx, "DROP ROLE IF EXISTS "+ident(roleName))
				return err
			},
		},
		{
			name: "grant",
			run:  func(ctx context.Context) error { return p.grant(ctx, dbName, roleName) },
		},
		{
			name: "migrate",
			run:  func(ctx context.Context) error { return p.Migrate(ctx, coords) },
		},
	}

	if err := runSaga(ctx, steps); err != nil {
		p.logger.Error("tenant provisioning failed", "tenant_id", tenantID, "database", dbName, "error", err)
		return tenant.Coordinates{}, err
	}

	p.logger.Info("tenant provisioned", "tenant_id", tenantID, "database", dbName, "role", roleName)
	return coords, nil
}

// Deprovision unwinds a tenant's resources outside the saga, used when
// persisting the tenant record fails after provisioning already succeeded.
func (p *Provisioner) Deprovision(ctx context.Context, tenantID string) error {
	dbName := DatabaseName(tenantID)
	roleName := dbName + "_app"

	if err := p.dropDatabase(ctx, dbName); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}
	if _, err := p.admin.Exec(ctx, "DROP ROLE IF EXISTS "+ident(roleName)); err != nil {
		return fmt.Errorf("drop role: %w", err)
	}
	return nil
}

// grant scopes the role to its own database: public access is revoked and
// the role gets full rights on the database and its public schema.
func (p *Provisioner) grant(ctx context.Context, dbName, roleName string) error {
	db, role := ident(dbName), ident(roleName)

	grants := []string{
		fmt.Sprintf("REVOKE CONNECT ON DATABASE %s FROM PUBLIC", db),
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", db, role),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", db, role),
	}
	for _, q := range grants {
		if _, err := p.admin.Exec(ctx, q); err != nil {
			return err
		}
	}

	// Schema-level grants need a connection inside the new database.
	conn, err := p.connectAs(ctx, dbName)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", dbName, err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, fmt.Sprintf("GRANT ALL ON SCHEMA public TO %s", role)); err != nil {
		return err
	}
	return nil
}

// Migrate applies the embedded baseline schema over the new principal's own
// credential, proving the provisioned access actually works. It runs per
// tenant creation, so it must stay safe under concurrent calls: the goose
// provider is constructed per invocation, no package-level goose state is
// touched.
func (p *Provisioner) Migrate(ctx context.Context, coords tenant.Coordinates) error {
	db, err := sql.Open("pgx", coords.DSN())
	if err != nil {
		return fmt.Errorf("open tenant db: %w", err)
	}
	defer func() { _ = db.Close() }()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply baseline schema: %w", err)
	}
	return nil
}

// dropDatabase force-disconnects any session on the database first so the
// drop cannot hang on a leftover connection. Safe against a database that
// was never created.
func (p *Provisioner) dropDatabase(ctx context.Context, dbName string) error {
	_, _ = p.admin.Exec(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`,
		dbName)

	_, err := p.admin.Exec(ctx, "DROP DATABASE IF EXISTS "+ident(dbName))
	return err
}

// connectAs opens a short-lived admin connection to the named database.
func (p *Provisioner) connectAs(ctx context.Context, dbName string) (*pgx.Conn, error) {
	connCfg := p.admin.Config().ConnConfig.Copy()
	connCfg.Database = dbName
	return pgx.ConnectConfig(ctx, connCfg)
}

// DatabaseName derives the deterministic database name for a tenant ID.
func DatabaseName(tenantID string) string {
	return "tenant_" + strings.ReplaceAll(tenantID, "-", "_")
}

// generateSecret returns a 32-byte random hex credential.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ident quotes an SQL identifier.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// literal quotes an SQL string literal. DDL statements cannot take bind
// parameters, so the generated password is embedded escaped.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
