package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/prettygood-work/benefits-chat-demo/internal/session"
)

func TestGuestEmailsAreUnique(t *testing.T) {
	// Two guests provisioned in the same millisecond must not collide on
	// the unique email constraint.
	a := guestEmail()
	b := guestEmail()
	if a == b {
		t.Fatalf("consecutive guest emails collide: %q", a)
	}
	for _, email := range []string{a, b} {
		if TypeOf(email) != session.UserTypeGuest {
			t.Errorf("guest email %q classified as %q", email, TypeOf(email))
		}
	}
}

func TestTypeOf(t *testing.T) {
	if got := TypeOf("alice@example.com"); got != session.UserTypeRegular {
		t.Errorf("regular email classified as %q", got)
	}
	if got := TypeOf("guest-1756339200000-0a1b2c3d"); got != session.UserTypeGuest {
		t.Errorf("guest email classified as %q", got)
	}
	// A plain timestamp without the random suffix is not a provisioned guest.
	if got := TypeOf("guest-1756339200000"); got != session.UserTypeRegular {
		t.Errorf("unsuffixed email classified as %q", got)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword("correct horse battery", hash) {
		t.Fatal("valid password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("invalid password accepted")
	}
}

func TestCreateGuestInsertsHashedCredential(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "created_at"}).
			AddRow("u-1", "guest-1756339200000-0a1b2c3d", time.Now()))

	s := NewStore(db)
	user, err := s.CreateGuest(context.Background())
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	if !strings.HasPrefix(user.Email, "guest-") {
		t.Fatalf("unexpected guest email %q", user.Email)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
