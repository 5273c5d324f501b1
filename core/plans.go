package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultPlanCurrency = "eur"

	CodePrefixPremium = "PREMIUM"
	CodePrefixPro     = "PRO"
	CodePrefixTest    = "TEST"
)

// DefaultPlans is the canonical price table: exact match on minor units.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Tier:       TierPremium,
			Amount:     4900,
			Currency:   defaultPlanCurrency,
			CodePrefix: CodePrefixPremium,
			AppPath:    "/premium.html",
			Features: []string{
				"Joueurs illimités",
				"Tous types de parties (tête-à-tête, doublettes, triplettes)",
				"Sauvegarde permanente",
				"Export PDF des feuilles de match",
				"Support prioritaire par email",
			},
		},
		{
			Tier:       TierPro,
			Amount:     9900,
			Currency:   defaultPlanCurrency,
			CodePrefix: CodePrefixPro,
			AppPath:    "/pro.html",
			Features: []string{
				"Toutes les fonctionnalités Premium",
				"Interface personnalisable (logo, couleurs)",
				"Modèles de tournois pré-configurés",
				"Formation personnalisée incluse (1h)",
				"Support téléphonique dédié",
				"API d'intégration",
			},
		},
	}
}

// TestPurchasePlan maps zero-amount checkouts when test purchases are accepted.
func TestPurchasePlan() Plan {
	plan := DefaultPlans()[0]
	plan.Amount = 0
	plan.Currency = ""
	plan.CodePrefix = CodePrefixTest
	plan.Test = true
	return plan
}

type PlanTable struct {
	plans []Plan
}

func NewPlanTable(plans []Plan, acceptTestPurchases bool) (*PlanTable, error) {
	table := &PlanTable{}
	seen := map[string]PlanTier{}
	candidates := append([]Plan(nil), plans...)
	if acceptTestPurchases {
		candidates = append(candidates, TestPurchasePlan())
	}
	for _, plan := range candidates {
		plan = normalizePlan(plan)
		if plan.Tier == "" {
			return nil, badInput("core: plan tier is required", map[string]any{"amount": plan.Amount})
		}
		if plan.Amount < 0 {
			return nil, badInput("core: plan amount must not be negative", map[string]any{"tier": string(plan.Tier)})
		}
		if plan.CodePrefix == "" {
			return nil, badInput("core: plan code prefix is required", map[string]any{"tier": string(plan.Tier)})
		}
		key := planKey(plan.Amount, plan.Currency)
		if existing, ok := seen[key]; ok {
			return nil, NewError(
				fmt.Sprintf("core: amount %d is already mapped to tier %s", plan.Amount, existing),
				goerrors.CategoryConflict,
				http.StatusConflict,
				ErrorConflict,
				map[string]any{"amount": plan.Amount, "tier": string(plan.Tier)},
			)
		}
		seen[key] = plan.Tier
		table.plans = append(table.plans, plan)
	}
	return table, nil
}

// Resolve returns the plan whose amount matches exactly. A plan without a
// currency matches any currency.
func (t *PlanTable) Resolve(amount int64, currency string) (Plan, error) {
	if t == nil {
		return Plan{}, internalError("core: plan table is not configured", nil)
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	for _, plan := range t.plans {
		if plan.Amount != amount {
			continue
		}
		if plan.Currency != "" && currency != "" && plan.Currency != currency {
			continue
		}
		return clonePlan(plan), nil
	}
	return Plan{}, UnrecognizedAmountError(amount, currency)
}

// ForTier returns the first non-test plan for tier.
func (t *PlanTable) ForTier(tier PlanTier) (Plan, bool) {
	if t == nil {
		return Plan{}, false
	}
	for _, plan := range t.plans {
		if plan.Tier == tier && !plan.Test {
			return clonePlan(plan), true
		}
	}
	return Plan{}, false
}

func (t *PlanTable) Plans() []Plan {
	if t == nil {
		return nil
	}
	out := make([]Plan, 0, len(t.plans))
	for _, plan := range t.plans {
		out = append(out, clonePlan(plan))
	}
	return out
}

func normalizePlan(plan Plan) Plan {
	plan.Tier = PlanTier(strings.TrimSpace(string(plan.Tier)))
	plan.Currency = strings.ToLower(strings.TrimSpace(plan.Currency))
	plan.CodePrefix = strings.ToUpper(strings.TrimSpace(plan.CodePrefix))
	plan.AppPath = strings.TrimSpace(plan.AppPath)
	return plan
}

func clonePlan(plan Plan) Plan {
	plan.Features = append([]string(nil), plan.Features...)
	return plan
}

func planKey(amount int64, currency string) string {
	return fmt.Sprintf("%d:%s", amount, currency)
}
