package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/vaihtoaktivaattori/portal/pkg/budget"
)

// BudgetReader is the part of the budget service the tools need.
type BudgetReader interface {
	Get(ctx context.Context, userID string) (budget.Snapshot, error)
}

type getBudgetParams struct {
	Category string `json:"category"`
}

type ToolExecutor struct {
	budgets BudgetReader
}

func NewToolExecutor(budgets BudgetReader) *ToolExecutor {
	return &ToolExecutor{budgets: budgets}
}

// ExecuteToolCall runs one tool call on behalf of userID and returns the text
// handed back to the model.
func (e *ToolExecutor) ExecuteToolCall(ctx context.Context, userID string, call openai.ToolCall) (string, error) {
	log.Info().Str("tool", call.Function.Name).Str("user_id", userID).Msg("Executing tool call")
	if call.Type != "" && call.Type != openai.ToolTypeFunction {
		return "", fmt.Errorf("unsupported tool type %q", call.Type)
	}

	switch call.Function.Name {
	case GetBudgetTool:
		if e.budgets == nil {
			return "", fmt.Errorf("budget tool is not available")
		}

		var params getBudgetParams
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			if err := json.Unmarshal([]byte(args), &params); err != nil {
				return "", fmt.Errorf("invalid parameters: %w", err)
			}
		}

		snap, err := e.budgets.Get(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("failed to read budget: %w", err)
		}
		return describeBudget(snap, params.Category), nil

	default:
		return "", fmt.Errorf("unknown tool %q", call.Function.Name)
	}
}

func describeBudget(snap budget.Snapshot, category string) string {
	if len(snap.Categories) == 0 {
		return "The student has not saved a budget yet."
	}

	if category != "" {
		c, ok := snap.Categories[category]
		if !ok {
			return fmt.Sprintf("The budget has no %q category. Categories: %s.", category, strings.Join(snap.Names(), ", "))
		}
		return fmt.Sprintf("%s: %.2f EUR%s", category, c.EstimatedCost, notesSuffix(c.Notes))
	}

	var b strings.Builder
	for _, name := range snap.Names() {
		c := snap.Categories[name]
		fmt.Fprintf(&b, "- %s: %.2f EUR%s\n", name, c.EstimatedCost, notesSuffix(c.Notes))
	}
	fmt.Fprintf(&b, "Total: %.2f EUR", snap.Total)
	return b.String()
}

func notesSuffix(notes string) string {
	if notes == "" {
		return ""
	}
	return " (" + notes + ")"
}
