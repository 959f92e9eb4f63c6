package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vtcode/vtcode/internal/tool/ui"
)

// QuestionOption is one selectable answer.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Question is one prompt shown to the user, with 2-4 options.
type Question struct {
	Question    string           `json:"question"`
	Header      string           `json:"header"`
	Options     []QuestionOption `json:"options"`
	MultiSelect bool             `json:"multiSelect"`
}

// QuestionRequest is handed to the UI collaborator for display.
type QuestionRequest struct {
	ID        string
	Questions []Question
}

// QuestionResponse carries the user's selections back, keyed by question
// index.
type QuestionResponse struct {
	RequestID string
	Answers   map[int][]string
	Cancelled bool
}

// AskUserQuestionTool suspends the turn to collect decisions from the
// user. It is interactive: the UI drives PrepareInteraction and
// ExecuteWithResponse; plain Execute refuses to run.
type AskUserQuestionTool struct {
	requestCounter int
}

// NewAskUserQuestionTool creates the tool.
func NewAskUserQuestionTool() *AskUserQuestionTool { return &AskUserQuestionTool{} }

func (t *AskUserQuestionTool) Name() string { return "AskUserQuestion" }
func (t *AskUserQuestionTool) Description() string {
	return "Ask the user questions to gather preferences, clarify requirements, or get decisions on implementation choices."
}
func (t *AskUserQuestionTool) Icon() string              { return "❓" }
func (t *AskUserQuestionTool) RequiresInteraction() bool { return true }

// decodeQuestions re-marshals the raw params into typed questions.
func decodeQuestions(params map[string]any) ([]Question, error) {
	raw, ok := params["questions"]
	if !ok {
		return nil, fmt.Errorf("missing required parameter: questions")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid questions format: %w", err)
	}
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse questions: %w", err)
	}
	return questions, nil
}

// PrepareInteraction validates the batch and packages it for the UI.
func (t *AskUserQuestionTool) PrepareInteraction(ctx context.Context, params map[string]any, cwd string) (any, error) {
	questions, err := decodeQuestions(params)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 || len(questions) > 4 {
		return nil, fmt.Errorf("questions must have 1-4 items, got %d", len(questions))
	}
	for i, q := range questions {
		switch {
		case q.Question == "":
			return nil, fmt.Errorf("question[%d]: question text is required", i)
		case len(q.Header) > 12:
			return nil, fmt.Errorf("question[%d]: header must be at most 12 characters", i)
		case len(q.Options) < 2 || len(q.Options) > 4:
			return nil, fmt.Errorf("question[%d]: must have 2-4 options, got %d", i, len(q.Options))
		}
		for j, opt := range q.Options {
			if opt.Label == "" {
				return nil, fmt.Errorf("question[%d].options[%d]: label is required", i, j)
			}
		}
	}

	t.requestCounter++
	return &QuestionRequest{
		ID:        fmt.Sprintf("ask-%d", t.requestCounter),
		Questions: questions,
	}, nil
}

// ExecuteWithResponse renders the user's selections for the model.
func (t *AskUserQuestionTool) ExecuteWithResponse(ctx context.Context, params map[string]any, response any, cwd string) ui.ToolResult {
	resp, ok := response.(*QuestionResponse)
	if !ok {
		return ui.NewErrorResult(t.Name(), "invalid response type")
	}
	if resp.Cancelled {
		result := ui.NewSuccessResult(t.Name(), t.Icon(), "Cancelled", 0, 0, 0, 0)
		result.Output = "User cancelled the question prompt without answering."
		return result
	}

	questions, _ := decodeQuestions(params)

	var sb strings.Builder
	sb.WriteString("User responses:\n")
	for i, q := range questions {
		answers := resp.Answers[i]
		if len(answers) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s: %s", q.Header, strings.Join(answers, ", "))
	}

	result := ui.NewSuccessResult(t.Name(), t.Icon(), fmt.Sprintf("%d answers", len(resp.Answers)), 0, 0, 0, 0)
	result.Output = sb.String()
	return result
}

// Execute refuses direct dispatch; the interaction flow is mandatory.
func (t *AskUserQuestionTool) Execute(ctx context.Context, params map[string]any, cwd string) ui.ToolResult {
	return ui.NewErrorResult(t.Name(), "this tool requires user interaction - use PrepareInteraction and ExecuteWithResponse")
}

func init() {
	Register(NewAskUserQuestionTool())
}
