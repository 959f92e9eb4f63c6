package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/vtcode/vtcode/internal/provider"
)

// APIKeyMeta describes the direct-API auth route; the SDK reads
// ANTHROPIC_API_KEY itself.
var APIKeyMeta = provider.ProviderMeta{
	Provider:    provider.ProviderAnthropic,
	AuthMethod:  provider.AuthAPIKey,
	EnvVars:     []string{"ANTHROPIC_API_KEY"},
	DisplayName: "Direct API",
}

// NewAPIKeyClient builds the default SDK client, which picks the API key
// up from the environment.
func NewAPIKeyClient(ctx context.Context) (provider.LLMProvider, error) {
	return NewClient(anthropic.NewClient(), "anthropic:api_key"), nil
}

func init() {
	provider.Register(APIKeyMeta, NewAPIKeyClient)
}
