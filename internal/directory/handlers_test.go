package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/taskhive/platform/internal/domain/tenant"
)

func newTestHandler(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	svc := newTestService(newFakeStore(), &fakeProvisioner{}, nil)
	srv := httptest.NewServer(NewHandler(svc, slog.New(slog.DiscardHandler)).Routes())
	t.Cleanup(srv.Close)
	return srv, svc
}

func postTenant(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/tenants", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestCreateTenantEndpoint(t *testing.T) {
	srv, _ := newTestHandler(t)

	resp := postTenant(t, srv, `{"name": "Acme Corp", "subdomain": "acme"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["subdomain"] != "acme" {
		t.Errorf("subdomain = %v", body["subdomain"])
	}
	db, ok := body["database"].(map[string]any)
	if !ok {
		t.Fatalf("database = %v", body["database"])
	}
	// The credential must not travel with the tenant resource.
	if _, leaked := db["db_password"]; leaked {
		t.Error("tenant resource exposes db_password")
	}
	if db["db_name"] == "" {
		t.Error("missing database name")
	}
}

func TestCreateTenantConflict(t *testing.T) {
	srv, _ := newTestHandler(t)

	resp := postTenant(t, srv, `{"name": "Acme", "subdomain": "acme"}`)
	resp.Body.Close()

	resp = postTenant(t, srv, `{"name": "Other", "subdomain": "acme"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["detail"] == "" {
		t.Error("conflict response missing detail")
	}
}

func TestCreateTenantBadRequests(t *testing.T) {
	srv, _ := newTestHandler(t)

	for _, body := range []string{`not json`, `{"name": "", "subdomain": "acme"}`, `{"name": "A", "subdomain": "no spaces"}`} {
		resp := postTenant(t, srv, body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestCreateTenantProvisioningFailure(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvisioner{err: errors.New("create database: boom")}, nil)
	srv := httptest.NewServer(NewHandler(svc, slog.New(slog.DiscardHandler)).Routes())
	defer srv.Close()

	resp := postTenant(t, srv, `{"name": "Acme", "subdomain": "acme"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestGetTenantEndpoints(t *testing.T) {
	srv, svc := newTestHandler(t)

	created, err := svc.CreateTenant(context.Background(), tenant.CreateRequest{Name: "Acme", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := http.Get(srv.URL + "/tenants/" + created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/tenants/unknown-id")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown tenant status = %d, want 404", resp2.StatusCode)
	}
}

func TestTenantDatabaseEndpointReturnsCredential(t *testing.T) {
	srv, svc := newTestHandler(t)

	created, err := svc.CreateTenant(context.Background(), tenant.CreateRequest{Name: "Acme", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := http.Get(srv.URL + "/tenants/" + created.ID + "/database")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["db_password"] == "" {
		t.Error("connection endpoint missing credential")
	}
	if body["db_user"] != created.Database.User {
		t.Errorf("db_user = %q, want %q", body["db_user"], created.Database.User)
	}
}

func TestResolveEndpoint(t *testing.T) {
	srv, svc := newTestHandler(t)

	created, err := svc.CreateTenant(context.Background(), tenant.CreateRequest{Name: "Acme", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := http.Get(srv.URL + "/resolve/acme")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["tenant_id"] != created.ID {
		t.Errorf("tenant_id = %q, want %q", body["tenant_id"], created.ID)
	}

	resp2, err := http.Get(srv.URL + "/resolve/ghost")
	if err != nil {
		t.Fatalf("resolve unknown: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown subdomain status = %d, want 404", resp2.StatusCode)
	}
}

func TestApplyMigrationsEndpoint(t *testing.T) {
	srv, svc := newTestHandler(t)

	created, err := svc.CreateTenant(context.Background(), tenant.CreateRequest{Name: "Acme", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, err := http.Post(srv.URL+"/tenants/"+created.ID+"/migrations", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["tenant_id"] != created.ID {
		t.Errorf("tenant_id = %q, want %q", body["tenant_id"], created.ID)
	}

	resp2, err := http.Post(srv.URL+"/tenants/ghost/migrations", "application/json", nil)
	if err != nil {
		t.Fatalf("post unknown: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown tenant status = %d, want 404", resp2.StatusCode)
	}
}

func TestDeactivateEndpoint(t *testing.T) {
	srv, svc := newTestHandler(t)

	created, err := svc.CreateTenant(context.Background(), tenant.CreateRequest{Name: "Acme", Subdomain: "acme"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/tenants/"+created.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/resolve/acme")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("deactivated tenant still resolves: %d", resp2.StatusCode)
	}
}
