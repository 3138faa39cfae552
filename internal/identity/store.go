// Package identity persists user accounts, including ephemeral guests.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/prettygood-work/benefits-chat-demo/internal/session"
)

var ErrUserNotFound = errors.New("user not found")

// guestEmailPattern matches provisioned guest accounts.
var guestEmailPattern = regexp.MustCompile(`^guest-\d+-[0-9a-f]{8}$`)

type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// TypeOf classifies a user by email shape.
func TypeOf(email string) string {
	if guestEmailPattern.MatchString(email) {
		return session.UserTypeGuest
	}
	return session.UserTypeRegular
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetByEmail(ctx context.Context, email string) (User, string, error) {
	var u User
	var passwordHash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &passwordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrUserNotFound
	}
	if err != nil {
		return User{}, "", fmt.Errorf("get user by email: %w", err)
	}
	return u, passwordHash, nil
}

func (s *Store) CreateUser(ctx context.Context, email, password string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.insert(ctx, email, hash)
}

// CreateGuest provisions a throwaway account with a random credential. The
// credential is hashed and discarded so a guest session cannot be replayed
// as a login.
func (s *Store) CreateGuest(ctx context.Context) (User, error) {
	hash, err := HashPassword(uuid.New().String())
	if err != nil {
		return User{}, fmt.Errorf("hash guest credential: %w", err)
	}
	return s.insert(ctx, guestEmail(), hash)
}

// guestEmail builds a unique guest address. The random suffix keeps two
// visitors provisioned in the same millisecond from colliding on the
// unique email constraint.
func guestEmail() string {
	return fmt.Sprintf("guest-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

func (s *Store) insert(ctx context.Context, email, passwordHash string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash)
		 VALUES ($1, $2)
		 RETURNING id, email, created_at`,
		email, passwordHash,
	).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}
