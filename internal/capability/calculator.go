package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/wayfind/pkg/schema"
)

// DefaultAlertRule flags plans whose combined subscriptions exceed $50/month.
const DefaultAlertRule = "total_monthly > 50.0"

// BudgetCalculator sums monthly subscription costs for a set of tools and
// evaluates a configurable over-budget alert rule.
type BudgetCalculator struct {
	rule    string
	program *vm.Program
}

// NewBudgetCalculator compiles the alert rule. An empty rule selects
// DefaultAlertRule.
func NewBudgetCalculator(alertRule string) (*BudgetCalculator, error) {
	if alertRule == "" {
		alertRule = DefaultAlertRule
	}
	program, err := expr.Compile(alertRule, expr.Env(budgetEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile alert rule %q: %w", alertRule, err)
	}
	return &BudgetCalculator{rule: alertRule, program: program}, nil
}

// budgetEnv is the typed environment the alert rule evaluates against.
type budgetEnv struct {
	TotalMonthly float64 `expr:"total_monthly"`
	TotalYearly  float64 `expr:"total_yearly"`
	ItemCount    int     `expr:"item_count"`
}

func (b *BudgetCalculator) Name() string { return "budget_calculator" }

func (b *BudgetCalculator) Description() string {
	return "Sum monthly and yearly subscription costs for a list of tools and flag over-budget plans"
}

func (b *BudgetCalculator) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "monthly_price"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "monthly_price": { "type": "number", "minimum": 0 }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`)
}

// budgetItem is one priced entry of the breakdown.
type budgetItem struct {
	Name         string  `json:"name"`
	MonthlyPrice float64 `json:"monthly_price"`
}

func (b *BudgetCalculator) Execute(_ context.Context, args map[string]any) (*Result, error) {
	rawItems, _ := args["items"].([]any)
	items := make([]budgetItem, 0, len(rawItems))
	var total float64
	for _, raw := range rawItems {
		entry, _ := raw.(map[string]any)
		name, _ := entry["name"].(string)
		price, _ := toFloat(entry["monthly_price"])
		items = append(items, budgetItem{Name: name, MonthlyPrice: price})
		total += price
	}

	env := budgetEnv{
		TotalMonthly: total,
		TotalYearly:  total * 12,
		ItemCount:    len(items),
	}
	alert, err := expr.Run(b.program, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCapability, "evaluate alert rule: %s", err.Error()).WithCause(err)
	}

	out := map[string]any{
		"breakdown":     items,
		"total_monthly": env.TotalMonthly,
		"total_yearly":  env.TotalYearly,
	}
	if alert == true {
		out["warning"] = fmt.Sprintf("budget alert: rule %q triggered at $%.2f/month", b.rule, total)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeCapability, "marshal budget result").WithCause(err)
	}
	return &Result{Data: data}, nil
}
