package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prettygood-work/benefits-chat-demo/internal/analytics"
	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
)

// PlanSource is the slice of the plan store the benefits tools use.
type PlanSource interface {
	GetByType(ctx context.Context, tenantID, planType string) (store.Plan, bool, error)
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]store.Plan, error)
	ListByTenant(ctx context.Context, tenantID string) ([]store.Plan, error)
}

// EventRecorder is satisfied by analytics.Recorder.
type EventRecorder interface {
	Record(ctx context.Context, tenantID, sessionID, eventType string, data any) error
}

// ProfileSink persists what the conversation has learned about the caller's
// household so later tool calls can omit it. Satisfied by store.ProfileStore.
type ProfileSink interface {
	Upsert(ctx context.Context, p store.Profile) error
	Get(ctx context.Context, sessionID string) (store.Profile, bool, error)
}

// BenefitsToolsConfig wires the benefits tools to their collaborators.
// Profiles and Recorder are optional; both are best-effort side channels.
type BenefitsToolsConfig struct {
	Plans    PlanSource
	Profiles ProfileSink
	Recorder EventRecorder
	Logger   logging.Logger
}

// usageMultipliers scale the deductible into an out-of-pocket estimate.
var usageMultipliers = map[string]float64{
	"low":    0.3,
	"medium": 0.6,
	"high":   0.9,
}

type calculateArgs struct {
	PlanType       string `json:"planType"`
	FamilySize     int    `json:"familySize"`
	EstimatedUsage string `json:"estimatedUsage"`
}

// CostEstimate is the model-facing result of calculate_plan_costs.
type CostEstimate struct {
	PlanID               string  `json:"planId"`
	PlanName             string  `json:"planName"`
	PlanType             string  `json:"planType"`
	CoverageTier         string  `json:"coverageTier"`
	FamilySize           int     `json:"familySize"`
	EstimatedUsage       string  `json:"estimatedUsage"`
	MonthlyPremium       float64 `json:"monthlyPremium"`
	AnnualPremium        float64 `json:"annualPremium"`
	Deductible           float64 `json:"annualDeductible"`
	OutOfPocketMax       float64 `json:"outOfPocketMax"`
	EstimatedOutOfPocket float64 `json:"estimatedOutOfPocket"`
	EstimatedAnnualTotal float64 `json:"estimatedAnnualTotal"`
}

// planNotFound is returned as an ordinary tool result so the model can
// recover by suggesting an available plan instead.
type planNotFound struct {
	Error          string   `json:"error"`
	Message        string   `json:"message"`
	AvailablePlans []string `json:"availablePlans"`
}

// NewCalculatePlanCostsTool estimates a plan's annual cost for a household.
func NewCalculatePlanCostsTool(cfg BenefitsToolsConfig) Tool {
	plans, recorder, logger := cfg.Plans, cfg.Recorder, cfg.Logger
	return Tool{
		Name:        "calculate_plan_costs",
		Description: "Calculate estimated annual costs for a benefits plan given family size and expected healthcare usage",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"planType": map[string]any{
					"type":        "string",
					"description": "Plan type, e.g. PPO, HMO, HDHP, EPO",
				},
				"familySize": map[string]any{
					"type":    "integer",
					"minimum": 1,
				},
				"estimatedUsage": map[string]any{
					"type": "string",
					"enum": []string{"low", "medium", "high"},
				},
			},
			"required": []string{"planType", "familySize"},
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in calculateArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.FamilySize < 1 {
				return nil, api.E(api.KindBadRequest, "familySize must be at least 1")
			}
			usage := in.EstimatedUsage
			if usage == "" {
				usage = "medium"
			}
			multiplier, ok := usageMultipliers[usage]
			if !ok {
				return nil, api.E(api.KindBadRequest, "estimatedUsage must be low, medium or high")
			}

			tenantID := session.GetTenantID(ctx)
			plan, found, err := plans.GetByType(ctx, tenantID, in.PlanType)
			if err != nil {
				return nil, fmt.Errorf("look up plan: %w", err)
			}
			if !found {
				available, err := availablePlanTypes(ctx, plans, tenantID)
				if err != nil {
					return nil, err
				}
				return planNotFound{
					Error:          "plan_not_found",
					Message:        fmt.Sprintf("no %s plan is offered", in.PlanType),
					AvailablePlans: available,
				}, nil
			}

			estimate := estimateCosts(plan, in.FamilySize, usage, multiplier)

			rememberProfile(ctx, cfg, in.FamilySize, usage)
			recordEvent(ctx, recorder, logger, analytics.EventCostCalculated, map[string]any{
				"planType":       plan.PlanType,
				"familySize":     in.FamilySize,
				"estimatedUsage": usage,
				"annualTotal":    estimate.EstimatedAnnualTotal,
			})
			return estimate, nil
		},
	}
}

func estimateCosts(plan store.Plan, familySize int, usage string, multiplier float64) CostEstimate {
	var tier string
	var monthly float64
	switch {
	case familySize == 1:
		tier = "individual"
		monthly = plan.MonthlyPremiums.Individual
	case familySize == 2:
		tier = "employeeSpouse"
		monthly = plan.MonthlyPremiums.EmployeeSpouse
	default:
		tier = "family"
		monthly = plan.MonthlyPremiums.Family
	}

	deductible := plan.Deductibles.Family
	oopMax := plan.OutOfPocketMax.Family
	if familySize == 1 {
		deductible = plan.Deductibles.Individual
		oopMax = plan.OutOfPocketMax.Individual
	}

	annualPremium := monthly * 12
	estimatedOOP := deductible * multiplier

	return CostEstimate{
		PlanID:               plan.ID,
		PlanName:             plan.Name,
		PlanType:             plan.PlanType,
		CoverageTier:         tier,
		FamilySize:           familySize,
		EstimatedUsage:       usage,
		MonthlyPremium:       monthly,
		AnnualPremium:        annualPremium,
		Deductible:           deductible,
		OutOfPocketMax:       oopMax,
		EstimatedOutOfPocket: estimatedOOP,
		EstimatedAnnualTotal: annualPremium + estimatedOOP,
	}
}

type compareArgs struct {
	PlanIDs     []string `json:"planIds"`
	UserProfile struct {
		FamilySize     int    `json:"familySize"`
		EstimatedUsage string `json:"estimatedUsage"`
	} `json:"userProfile"`
}

// PlanComparison is one normalized row of compare_plans output.
type PlanComparison struct {
	PlanID          string             `json:"planId"`
	Name            string             `json:"name"`
	PlanType        string             `json:"planType"`
	Description     string             `json:"description,omitempty"`
	MonthlyPremiums store.PremiumTiers `json:"monthlyPremiums"`
	Deductibles     store.CostTiers    `json:"annualDeductible"`
	OutOfPocketMax  store.CostTiers    `json:"outOfPocketMax"`
	Features        []string           `json:"features,omitempty"`

	// Populated when the household is known, from the call or a saved profile.
	EstimatedAnnualTotal float64 `json:"estimatedAnnualTotal,omitempty"`
}

// NewComparePlansTool lays plans side by side. The comparison is returned
// even when the analytics side effect fails.
func NewComparePlansTool(cfg BenefitsToolsConfig) Tool {
	plans, recorder, logger := cfg.Plans, cfg.Recorder, cfg.Logger
	return Tool{
		Name:        "compare_plans",
		Description: "Compare benefits plans side by side; omit planIds to compare every available plan",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"planIds": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"userProfile": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"familySize":     map[string]any{"type": "integer"},
						"estimatedUsage": map[string]any{"type": "string"},
					},
				},
			},
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in compareArgs
			if err := decodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.UserProfile.FamilySize > 0 {
				rememberProfile(ctx, cfg, in.UserProfile.FamilySize, in.UserProfile.EstimatedUsage)
			} else if cfg.Profiles != nil {
				if saved, found, err := cfg.Profiles.Get(ctx, session.GetChatID(ctx)); err == nil && found {
					in.UserProfile.FamilySize = saved.FamilySize
					in.UserProfile.EstimatedUsage = saved.EstimatedUsage
				}
			}

			tenantID := session.GetTenantID(ctx)
			var selected []store.Plan
			var err error
			if len(in.PlanIDs) > 0 {
				selected, err = plans.GetByIDs(ctx, tenantID, in.PlanIDs)
			} else {
				selected, err = plans.ListByTenant(ctx, tenantID)
			}
			if err != nil {
				return nil, fmt.Errorf("load plans: %w", err)
			}
			if len(selected) == 0 {
				return planNotFound{
					Error:   "plan_not_found",
					Message: "no matching plans found",
				}, nil
			}

			usage := in.UserProfile.EstimatedUsage
			if usage == "" {
				usage = "medium"
			}
			multiplier := usageMultipliers[usage]

			rows := make([]PlanComparison, 0, len(selected))
			ids := make([]string, 0, len(selected))
			for _, p := range selected {
				ids = append(ids, p.ID)
				row := PlanComparison{
					PlanID:          p.ID,
					Name:            p.Name,
					PlanType:        p.PlanType,
					Description:     p.Description,
					MonthlyPremiums: p.MonthlyPremiums,
					Deductibles:     p.Deductibles,
					OutOfPocketMax:  p.OutOfPocketMax,
					Features:        p.Features,
				}
				if in.UserProfile.FamilySize > 0 && multiplier > 0 {
					row.EstimatedAnnualTotal = estimateCosts(p, in.UserProfile.FamilySize, usage, multiplier).EstimatedAnnualTotal
				}
				rows = append(rows, row)
			}

			recordEvent(ctx, recorder, logger, analytics.EventPlanCompared, map[string]any{
				"planIds":    ids,
				"familySize": in.UserProfile.FamilySize,
			})
			return map[string]any{"plans": rows}, nil
		},
	}
}

func availablePlanTypes(ctx context.Context, plans PlanSource, tenantID string) ([]string, error) {
	all, err := plans.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	types := make([]string, 0, len(all))
	for _, p := range all {
		types = append(types, p.PlanType)
	}
	return types, nil
}

// rememberProfile stores the household details last-writer-wins by session.
// Best effort: a failed write never fails the tool call.
func rememberProfile(ctx context.Context, cfg BenefitsToolsConfig, familySize int, usage string) {
	if cfg.Profiles == nil || familySize < 1 {
		return
	}
	sessionID := session.GetChatID(ctx)
	if sessionID == "" {
		return
	}
	err := cfg.Profiles.Upsert(ctx, store.Profile{
		SessionID:      sessionID,
		TenantID:       session.GetTenantID(ctx),
		FamilySize:     familySize,
		EstimatedUsage: usage,
	})
	if err != nil && cfg.Logger != nil {
		cfg.Logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to persist household profile")
	}
}

// recordEvent is the best-effort analytics write shared by the benefits
// tools. Failures are logged, never returned.
func recordEvent(ctx context.Context, recorder EventRecorder, logger logging.Logger, eventType string, data map[string]any) {
	if recorder == nil {
		return
	}
	tenantID := session.GetTenantID(ctx)
	sessionID := session.GetChatID(ctx)
	if err := recorder.Record(ctx, tenantID, sessionID, eventType, data); err != nil {
		logger.WithError(err).WithField("event_type", eventType).Warn("Failed to record analytics event")
	}
}
