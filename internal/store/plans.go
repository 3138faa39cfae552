package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PremiumTiers holds monthly premiums per coverage tier.
type PremiumTiers struct {
	Individual     float64 `json:"individual"`
	EmployeeSpouse float64 `json:"employeeSpouse"`
	Family         float64 `json:"family"`
}

// CostTiers holds individual/family amounts for deductibles and OOP maxima.
type CostTiers struct {
	Individual float64 `json:"individual"`
	Family     float64 `json:"family"`
}

type Plan struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	PlanType        string          `json:"planType"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	MonthlyPremiums PremiumTiers    `json:"monthlyPremiums"`
	Deductibles     CostTiers       `json:"annualDeductible"`
	OutOfPocketMax  CostTiers       `json:"outOfPocketMax"`
	Copays          json.RawMessage `json:"copays,omitempty"`
	RxCoverage      json.RawMessage `json:"prescriptionCoverage,omitempty"`
	Features        []string        `json:"features,omitempty"`
}

type PlanStore struct {
	db *sql.DB
}

func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

const planColumns = `id, tenant_id, plan_type, name, COALESCE(description, ''),
		monthly_premiums, annual_deductible, out_of_pocket_max,
		COALESCE(copays, 'null'), COALESCE(prescription_coverage, 'null'), features`

func (s *PlanStore) ListByTenant(ctx context.Context, tenantID string) ([]Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM benefits_plans WHERE tenant_id = $1 ORDER BY name ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

// GetByIDs fetches the named plans for a tenant. Unknown ids are simply
// absent from the result.
func (s *PlanStore) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]Plan, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM benefits_plans WHERE tenant_id = $1 AND id = ANY($2) ORDER BY name ASC`,
		tenantID, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("get plans by ids: %w", err)
	}
	defer rows.Close()
	return scanPlans(rows)
}

// GetByType fetches a tenant's plan of a given type (PPO, HMO, HDHP, EPO).
func (s *PlanStore) GetByType(ctx context.Context, tenantID, planType string) (Plan, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM benefits_plans WHERE tenant_id = $1 AND plan_type = $2 LIMIT 1`,
		tenantID, planType,
	)
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return Plan{}, false, nil
	}
	if err != nil {
		return Plan{}, false, fmt.Errorf("get plan by type: %w", err)
	}
	return plan, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (Plan, error) {
	var p Plan
	var premiums, deductibles, oopMax []byte
	if err := row.Scan(
		&p.ID, &p.TenantID, &p.PlanType, &p.Name, &p.Description,
		&premiums, &deductibles, &oopMax,
		&p.Copays, &p.RxCoverage, pq.Array(&p.Features),
	); err != nil {
		return Plan{}, err
	}
	if err := json.Unmarshal(premiums, &p.MonthlyPremiums); err != nil {
		return Plan{}, fmt.Errorf("decode monthly premiums: %w", err)
	}
	if err := json.Unmarshal(deductibles, &p.Deductibles); err != nil {
		return Plan{}, fmt.Errorf("decode deductibles: %w", err)
	}
	if err := json.Unmarshal(oopMax, &p.OutOfPocketMax); err != nil {
		return Plan{}, fmt.Errorf("decode out of pocket max: %w", err)
	}
	return p, nil
}

func scanPlans(rows *sql.Rows) ([]Plan, error) {
	var plans []Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("plan rows: %w", err)
	}
	return plans, nil
}
