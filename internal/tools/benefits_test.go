package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
)

type fakePlanSource struct {
	plans []store.Plan
}

func (f *fakePlanSource) GetByType(_ context.Context, tenantID, planType string) (store.Plan, bool, error) {
	for _, p := range f.plans {
		if p.TenantID == tenantID && p.PlanType == planType {
			return p, true, nil
		}
	}
	return store.Plan{}, false, nil
}

func (f *fakePlanSource) GetByIDs(_ context.Context, tenantID string, ids []string) ([]store.Plan, error) {
	var out []store.Plan
	for _, p := range f.plans {
		for _, id := range ids {
			if p.TenantID == tenantID && p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakePlanSource) ListByTenant(_ context.Context, tenantID string) ([]store.Plan, error) {
	var out []store.Plan
	for _, p := range f.plans {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeRecorder struct {
	events []string
	err    error
}

func (f *fakeRecorder) Record(_ context.Context, _, _, eventType string, _ any) error {
	f.events = append(f.events, eventType)
	return f.err
}

func testPlans() *fakePlanSource {
	return &fakePlanSource{plans: []store.Plan{
		{
			ID:              "plan-ppo",
			TenantID:        "t-1",
			PlanType:        "PPO",
			Name:            "Premium PPO",
			MonthlyPremiums: store.PremiumTiers{Individual: 450, EmployeeSpouse: 650, Family: 950},
			Deductibles:     store.CostTiers{Individual: 1000, Family: 2000},
			OutOfPocketMax:  store.CostTiers{Individual: 4000, Family: 8000},
		},
		{
			ID:              "plan-hdhp",
			TenantID:        "t-1",
			PlanType:        "HDHP",
			Name:            "Saver HDHP",
			MonthlyPremiums: store.PremiumTiers{Individual: 200, EmployeeSpouse: 350, Family: 500},
			Deductibles:     store.CostTiers{Individual: 3000, Family: 6000},
			OutOfPocketMax:  store.CostTiers{Individual: 6000, Family: 12000},
		},
	}}
}

func tenantContext() context.Context {
	ctx := session.WithTenantID(context.Background(), "t-1")
	return session.WithChatID(ctx, "chat-1")
}

func TestCalculatePlanCosts(t *testing.T) {
	recorder := &fakeRecorder{}
	tool := NewCalculatePlanCostsTool(BenefitsToolsConfig{Plans: testPlans(), Recorder: recorder, Logger: logging.NewLogger()})

	result, err := tool.Execute(tenantContext(),
		json.RawMessage(`{"planType":"PPO","familySize":2,"estimatedUsage":"medium"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	estimate, ok := result.(CostEstimate)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if estimate.CoverageTier != "employeeSpouse" {
		t.Errorf("coverage tier: got %q", estimate.CoverageTier)
	}
	if estimate.AnnualPremium != 7800 {
		t.Errorf("annual premium: got %v, want 7800", estimate.AnnualPremium)
	}
	if estimate.Deductible != 2000 {
		t.Errorf("deductible: got %v, want 2000", estimate.Deductible)
	}
	if estimate.EstimatedOutOfPocket != 1200 {
		t.Errorf("estimated out of pocket: got %v, want 1200", estimate.EstimatedOutOfPocket)
	}
	if estimate.EstimatedAnnualTotal != 9000 {
		t.Errorf("annual total: got %v, want 9000", estimate.EstimatedAnnualTotal)
	}
	if len(recorder.events) != 1 || recorder.events[0] != "cost_calculated" {
		t.Errorf("expected cost_calculated event, got %v", recorder.events)
	}
}

func TestCalculatePlanCostsSingleCoverage(t *testing.T) {
	tool := NewCalculatePlanCostsTool(BenefitsToolsConfig{Plans: testPlans(), Logger: logging.NewLogger()})

	result, err := tool.Execute(tenantContext(),
		json.RawMessage(`{"planType":"HDHP","familySize":1,"estimatedUsage":"high"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	estimate := result.(CostEstimate)
	if estimate.CoverageTier != "individual" {
		t.Errorf("coverage tier: got %q", estimate.CoverageTier)
	}
	// 200*12 + 3000*0.9
	if estimate.EstimatedAnnualTotal != 5100 {
		t.Errorf("annual total: got %v, want 5100", estimate.EstimatedAnnualTotal)
	}
}

func TestCalculatePlanCostsUnknownPlanIsStructuredResult(t *testing.T) {
	tool := NewCalculatePlanCostsTool(BenefitsToolsConfig{Plans: testPlans(), Logger: logging.NewLogger()})

	result, err := tool.Execute(tenantContext(),
		json.RawMessage(`{"planType":"EPO","familySize":3}`))
	if err != nil {
		t.Fatalf("unknown plan must not be an error: %v", err)
	}
	nf, ok := result.(planNotFound)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if nf.Error != "plan_not_found" || len(nf.AvailablePlans) != 2 {
		t.Fatalf("unexpected result %+v", nf)
	}
}

func TestCalculatePlanCostsRejectsBadInput(t *testing.T) {
	tool := NewCalculatePlanCostsTool(BenefitsToolsConfig{Plans: testPlans(), Logger: logging.NewLogger()})

	_, err := tool.Execute(tenantContext(), json.RawMessage(`{"planType":"PPO","familySize":0}`))
	if api.KindOf(err) != api.KindBadRequest {
		t.Fatalf("expected bad_request for familySize 0, got %v", err)
	}

	_, err = tool.Execute(tenantContext(), json.RawMessage(`{"planType":"PPO","familySize":2,"estimatedUsage":"extreme"}`))
	if api.KindOf(err) != api.KindBadRequest {
		t.Fatalf("expected bad_request for bad usage, got %v", err)
	}
}

func TestComparePlansSurvivesRecorderFailure(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("kafka down")}
	tool := NewComparePlansTool(BenefitsToolsConfig{Plans: testPlans(), Recorder: recorder, Logger: logging.NewLogger()})

	result, err := tool.Execute(tenantContext(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("comparison must survive recorder failure: %v", err)
	}
	payload := result.(map[string]any)
	rows := payload["plans"].([]PlanComparison)
	if len(rows) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(rows))
	}
	if len(recorder.events) != 1 || recorder.events[0] != "plan_compared" {
		t.Errorf("expected plan_compared attempt, got %v", recorder.events)
	}
}

type fakeProfiles struct {
	saved map[string]store.Profile
}

func (f *fakeProfiles) Upsert(_ context.Context, p store.Profile) error {
	if f.saved == nil {
		f.saved = map[string]store.Profile{}
	}
	f.saved[p.SessionID] = p
	return nil
}

func (f *fakeProfiles) Get(_ context.Context, sessionID string) (store.Profile, bool, error) {
	p, ok := f.saved[sessionID]
	return p, ok, nil
}

func TestComparePlansRecallsSavedProfile(t *testing.T) {
	profiles := &fakeProfiles{}
	cfg := BenefitsToolsConfig{Plans: testPlans(), Profiles: profiles, Logger: logging.NewLogger()}
	calc := NewCalculatePlanCostsTool(cfg)
	compare := NewComparePlansTool(cfg)

	if _, err := calc.Execute(tenantContext(),
		json.RawMessage(`{"planType":"PPO","familySize":2,"estimatedUsage":"medium"}`)); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if profiles.saved["chat-1"].FamilySize != 2 {
		t.Fatalf("profile not saved: %+v", profiles.saved)
	}

	// No userProfile in the call; the saved household fills in.
	result, err := compare.Execute(tenantContext(), json.RawMessage(`{"planIds":["plan-ppo"]}`))
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	rows := result.(map[string]any)["plans"].([]PlanComparison)
	// 650*12 + 2000*0.6
	if rows[0].EstimatedAnnualTotal != 9000 {
		t.Fatalf("estimated total: got %v, want 9000", rows[0].EstimatedAnnualTotal)
	}
}

func TestComparePlansByID(t *testing.T) {
	tool := NewComparePlansTool(BenefitsToolsConfig{Plans: testPlans(), Logger: logging.NewLogger()})

	result, err := tool.Execute(tenantContext(), json.RawMessage(`{"planIds":["plan-hdhp"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := result.(map[string]any)["plans"].([]PlanComparison)
	if len(rows) != 1 || rows[0].PlanID != "plan-hdhp" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
