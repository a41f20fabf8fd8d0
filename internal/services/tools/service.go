package tools

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"
)

const GetBudgetTool = "get_budget"

var getBudgetParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"category": {
			"type": "string",
			"description": "Optional budget category, e.g. rent, travel or insurance. Omit to get the whole budget."
		}
	}
}`)

type Service struct {
	tools []openai.Tool
}

// NewService lists the function tools offered to the model. get_budget is
// only offered when a budget reader is available.
func NewService(budgets BudgetReader) *Service {
	var tools []openai.Tool
	if budgets != nil {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        GetBudgetTool,
				Description: "Read the student's saved exchange budget estimate in euros.",
				Parameters:  getBudgetParameters,
			},
		})
	}
	return &Service{tools: tools}
}

func (s *Service) GetTools() []openai.Tool {
	return s.tools
}
