// Package access decides who may do what: tenant membership with a role
// hierarchy, per-user-type entitlements, and message quotas.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
)

// roleRank orders membership roles. Higher ranks satisfy lower requirements.
var roleRank = map[string]int{
	"member": 1,
	"admin":  2,
	"owner":  3,
}

type Membership struct {
	TenantID    string
	UserID      string
	Role        string
	Permissions []string
}

// MembershipStore is the slice of the database the authorizer needs.
type MembershipStore interface {
	GetMembership(ctx context.Context, userID, tenantID string) (Membership, error)
}

// MessageCounter reports recent user message volume for quota checks.
type MessageCounter interface {
	MessageCountSince(ctx context.Context, userID string, window time.Duration) (int, error)
}

var ErrMembershipNotFound = errors.New("membership not found")

// SQLMembershipStore reads memberships from Postgres.
type SQLMembershipStore struct {
	db *sql.DB
}

func NewSQLMembershipStore(db *sql.DB) *SQLMembershipStore {
	return &SQLMembershipStore{db: db}
}

func (s *SQLMembershipStore) GetMembership(ctx context.Context, userID, tenantID string) (Membership, error) {
	var m Membership
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, user_id, role FROM tenant_memberships WHERE user_id = $1 AND tenant_id = $2`,
		userID, tenantID,
	).Scan(&m.TenantID, &m.UserID, &m.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return Membership{}, ErrMembershipNotFound
	}
	if err != nil {
		return Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// Entitlements bound what a user type may consume.
type Entitlements struct {
	MaxMessagesPerDay int
	AllowedTools      []string
}

// coreTools are available to everyone, including guests.
var coreTools = []string{"get_weather", "calculate_plan_costs", "compare_plans"}

// documentTools require a regular account.
var documentTools = []string{"create_document", "update_document", "request_suggestions"}

type AuthorizerConfig struct {
	Memberships       MembershipStore
	Messages          MessageCounter
	GuestDailyLimit   int
	RegularDailyLimit int
}

type Authorizer struct {
	memberships       MembershipStore
	messages          MessageCounter
	guestDailyLimit   int
	regularDailyLimit int
}

func NewAuthorizer(cfg AuthorizerConfig) *Authorizer {
	guestLimit := cfg.GuestDailyLimit
	if guestLimit <= 0 {
		guestLimit = 20
	}
	regularLimit := cfg.RegularDailyLimit
	if regularLimit <= 0 {
		regularLimit = 100
	}
	return &Authorizer{
		memberships:       cfg.Memberships,
		messages:          cfg.Messages,
		guestDailyLimit:   guestLimit,
		regularDailyLimit: regularLimit,
	}
}

// CanAccess reports whether the user holds requiredRole or better within the
// tenant. An empty requiredRole means any membership suffices. Absence of a
// membership is an ordinary false, not an error.
func (a *Authorizer) CanAccess(ctx context.Context, userID, tenantID, requiredRole string) (bool, error) {
	required := 0
	if requiredRole != "" {
		var ok bool
		required, ok = roleRank[requiredRole]
		if !ok {
			return false, fmt.Errorf("unknown role %q", requiredRole)
		}
	}
	m, err := a.memberships.GetMembership(ctx, userID, tenantID)
	if errors.Is(err, ErrMembershipNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return roleRank[m.Role] >= required, nil
}

// RoleFor returns the user's membership role within the tenant, "" when no
// membership exists. Sessions carry this as their role claim.
func (a *Authorizer) RoleFor(ctx context.Context, userID, tenantID string) (string, error) {
	m, err := a.memberships.GetMembership(ctx, userID, tenantID)
	if errors.Is(err, ErrMembershipNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

// EntitlementsFor returns the consumption bounds for a user type. Unknown
// types get guest entitlements.
func (a *Authorizer) EntitlementsFor(userType string) Entitlements {
	if userType == session.UserTypeRegular {
		return Entitlements{
			MaxMessagesPerDay: a.regularDailyLimit,
			AllowedTools:      append(append([]string{}, coreTools...), documentTools...),
		}
	}
	return Entitlements{
		MaxMessagesPerDay: a.guestDailyLimit,
		AllowedTools:      append([]string{}, coreTools...),
	}
}

// CheckQuota enforces the trailing 24h message limit before any model call.
func (a *Authorizer) CheckQuota(ctx context.Context, userID, userType string) error {
	ent := a.EntitlementsFor(userType)
	count, err := a.messages.MessageCountSince(ctx, userID, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}
	if count >= ent.MaxMessagesPerDay {
		return api.E(api.KindRateLimit, "daily message limit reached")
	}
	return nil
}
