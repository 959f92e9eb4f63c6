package contextmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/vtcode/vtcode/internal/client"
	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/system"
)

// LLMSummarizer summarizes a band of history via a bounded sub-request to
// the same LLM client the turn uses. Grounded on the teacher's package-level
// Compact helper (internal/core/core.go), generalized from a whole-session,
// user-invoked operation into a band-scoped step inside adaptive_trim.
type LLMSummarizer struct {
	Client    *client.Client
	MaxTokens int
}

// NewLLMSummarizer builds a Summarizer bounded to maxTokens output (0 uses
// a 2048-token default, matching the teacher's Compact call).
func NewLLMSummarizer(c *client.Client, maxTokens int) *LLMSummarizer {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &LLMSummarizer{Client: c, MaxTokens: maxTokens}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, band []message.Message) (message.Message, error) {
	conversationText := message.BuildConversationText(band)

	response, err := s.Client.Complete(ctx, system.CompactPrompt(),
		[]message.Message{message.UserMessage(conversationText, nil)}, s.MaxTokens)
	if err != nil {
		return message.Message{}, fmt.Errorf("contextmgr: summarize: %w", err)
	}

	return message.Message{
		Role:    message.RoleAssistant,
		Content: strings.TrimSpace(response.Content),
		Summary: true,
	}, nil
}
