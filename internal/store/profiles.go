package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Profile captures what is known about a session's household for plan
// comparisons. Writes are last-writer-wins per session.
type Profile struct {
	SessionID      string          `json:"sessionId"`
	TenantID       string          `json:"tenantId"`
	FamilySize     int             `json:"familySize,omitempty"`
	EstimatedUsage string          `json:"estimatedUsage,omitempty"`
	Preferences    json.RawMessage `json:"preferences,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) Upsert(ctx context.Context, p Profile) error {
	prefs := p.Preferences
	if len(prefs) == 0 {
		prefs = json.RawMessage("null")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (session_id, tenant_id, family_size, estimated_usage, preferences, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (session_id) DO UPDATE SET
		   family_size = EXCLUDED.family_size,
		   estimated_usage = EXCLUDED.estimated_usage,
		   preferences = EXCLUDED.preferences,
		   updated_at = NOW()`,
		p.SessionID, p.TenantID, p.FamilySize, p.EstimatedUsage, []byte(prefs),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *ProfileStore) Get(ctx context.Context, sessionID string) (Profile, bool, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, tenant_id, family_size, COALESCE(estimated_usage, ''), COALESCE(preferences, 'null'), updated_at
		 FROM user_profiles WHERE session_id = $1`,
		sessionID,
	).Scan(&p.SessionID, &p.TenantID, &p.FamilySize, &p.EstimatedUsage, &p.Preferences, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("get profile: %w", err)
	}
	return p, true, nil
}
