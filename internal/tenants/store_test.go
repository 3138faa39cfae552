package tenants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
)

func tenantColumns() []string {
	return []string{"id", "slug", "name", "status", "branding", "settings", "created_at", "updated_at"}
}

func TestGetBySlugLowercasesInput(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, slug, name, status`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(tenantColumns()).
			AddRow("t-1", "acme", "Acme Corp", "active", []byte("null"), []byte("null"), now, now))

	store := NewStore(db)
	tenant, err := store.GetBySlug(context.Background(), "  ACME ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant.ID != "t-1" || tenant.Slug != "acme" {
		t.Fatalf("unexpected tenant: %+v", tenant)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetBySlugNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, slug, name, status`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(tenantColumns()))

	store := NewStore(db)
	if _, err := store.GetBySlug(context.Background(), "ghost"); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestCreateTenantCommitsOwnerMembership(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs("acme", "Acme Corp").
		WillReturnRows(sqlmock.NewRows(tenantColumns()).
			AddRow("t-1", "acme", "Acme Corp", "active", []byte("null"), []byte("null"), now, now))
	mock.ExpectExec(`INSERT INTO tenant_memberships`).
		WithArgs("t-1", "u-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := NewStore(db)
	tenant, err := store.Create(context.Background(), "Acme", "Acme Corp", "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant.Slug != "acme" {
		t.Fatalf("unexpected slug: %s", tenant.Slug)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateTenantDuplicateSlugIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs("acme", "Acme Corp").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	store := NewStore(db)
	_, err = store.Create(context.Background(), "acme", "Acme Corp", "u-1")
	if api.KindOf(err) != api.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateTenantRejectsReservedSlug(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	for _, slug := range []string{"www", "admin", "app", "Bad Slug", "-leading"} {
		if _, err := store.Create(context.Background(), slug, "Name", "u-1"); api.KindOf(err) != api.KindBadRequest {
			t.Fatalf("slug %q: expected bad_request, got %v", slug, err)
		}
	}
}
