package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/vtcode/vtcode/internal/log"
	"github.com/vtcode/vtcode/internal/message"
	"github.com/vtcode/vtcode/internal/provider"
)

// Client adapts the Anthropic SDK's Messages streaming API to the
// normalized chunk stream the runloop consumes.
type Client struct {
	client       anthropic.Client
	name         string
	cachedModels []provider.ModelInfo
}

// NewClient wraps a configured SDK client.
func NewClient(client anthropic.Client, name string) *Client {
	return &Client{client: client, name: name}
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// convertMessages maps conversation history onto Anthropic message
// params: tool results become tool_result blocks on a user message,
// images become base64 blocks, assistant tool calls become tool_use
// blocks.
func convertMessages(msgs []message.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleUser:
			if msg.ToolResult != nil {
				out = append(out, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(
						msg.ToolResult.ToolCallID,
						msg.ToolResult.Content,
						msg.ToolResult.IsError,
					),
				))
				continue
			}
			if len(msg.Images) > 0 {
				blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Images)+1)
				for _, img := range msg.Images {
					blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, img.Data))
				}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				out = append(out, anthropic.NewUserMessage(blocks...))
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case message.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
				continue
			}
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, decodeToolInput(tc.Input), tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

// decodeToolInput turns accumulated JSON back into a value the SDK can
// re-serialize; a parameterless call becomes an empty object, not nil.
func decodeToolInput(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var input any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return raw
	}
	return input
}

// convertTools maps declared tool schemas onto the SDK's tool params.
func convertTools(tools []provider.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if root, ok := t.Parameters.(map[string]any); ok {
			schema.Properties = root["properties"]
			schema.Required = requiredFields(root["required"])
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}

func requiredFields(raw any) []string {
	switch req := raw.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Stream opens a streaming Messages request and translates SDK events
// into normalized chunks.
func (c *Client) Stream(ctx context.Context, opts provider.CompletionOptions) <-chan message.StreamChunk {
	ch := make(chan message.StreamChunk)

	go func() {
		defer close(ch)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(opts.Model),
			MaxTokens: int64(opts.MaxTokens),
			Messages:  convertMessages(opts.Messages),
		}
		if opts.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
		}
		if len(opts.Tools) > 0 {
			params.Tools = convertTools(opts.Tools)
		}

		log.LogRequest(c.name, opts.Model, opts)
		stream := c.client.Messages.NewStreaming(ctx, params)

		var (
			response  message.CompletionResponse
			toolID    string
			toolName  string
			toolInput string
		)
		streamStart := time.Now()
		chunkCount := 0

		for stream.Next() {
			event := stream.Current()
			chunkCount++

			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				response.Usage.InputTokens = int(start.Message.Usage.InputTokens)

			case "content_block_start":
				block := event.AsContentBlockStart()
				if block.ContentBlock.Type == "tool_use" {
					toolID = block.ContentBlock.ID
					toolName = block.ContentBlock.Name
					toolInput = ""
					ch <- message.StreamChunk{
						Type:     message.ChunkTypeToolStart,
						ToolID:   toolID,
						ToolName: toolName,
					}
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta()
				switch delta.Delta.Type {
				case "text_delta":
					if delta.Delta.Text != "" {
						response.Content += delta.Delta.Text
						ch <- message.StreamChunk{Type: message.ChunkTypeText, Text: delta.Delta.Text}
					}
				case "thinking_delta":
					if delta.Delta.Thinking != "" {
						response.Thinking += delta.Delta.Thinking
						ch <- message.StreamChunk{Type: message.ChunkTypeThinking, Text: delta.Delta.Thinking}
					}
				case "input_json_delta":
					if delta.Delta.PartialJSON != "" {
						toolInput += delta.Delta.PartialJSON
						ch <- message.StreamChunk{
							Type:   message.ChunkTypeToolInput,
							ToolID: toolID,
							Text:   delta.Delta.PartialJSON,
						}
					}
				}

			case "content_block_stop":
				if toolID != "" && toolName != "" {
					response.ToolCalls = append(response.ToolCalls, message.ToolCall{
						ID:    toolID,
						Name:  toolName,
						Input: toolInput,
					})
					toolID, toolName, toolInput = "", "", ""
				}

			case "message_delta":
				delta := event.AsMessageDelta()
				response.StopReason = string(delta.Delta.StopReason)
				response.Usage.OutputTokens = int(delta.Usage.OutputTokens)
			}
		}

		log.LogStreamDone(c.name, time.Since(streamStart), chunkCount)

		if err := stream.Err(); err != nil {
			log.LogError(c.name, err)
			ch <- message.StreamChunk{Type: message.ChunkTypeError, Error: err}
			return
		}

		log.LogResponse(c.name, response)
		ch <- message.StreamChunk{Type: message.ChunkTypeDone, Response: &response}
	}()

	return ch
}

// defaultModels backs ListModels when the Models API is unreachable.
var defaultModels = []provider.ModelInfo{
	{ID: "claude-opus-4-5@20251101", Name: "Claude Opus 4.5", DisplayName: "Claude Opus 4.5 (Most Capable)"},
	{ID: "claude-sonnet-4-5@20250929", Name: "Claude Sonnet 4.5", DisplayName: "Claude Sonnet 4.5 (Balanced)"},
	{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", DisplayName: "Claude Sonnet 4"},
	{ID: "claude-haiku-3-5@20241022", Name: "Claude Haiku 3.5", DisplayName: "Claude Haiku 3.5 (Fast)"},
}

// ListModels queries the Models API once, caching the answer; a failed
// call degrades to the static list rather than erroring.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	if len(c.cachedModels) > 0 {
		return c.cachedModels, nil
	}
	models, err := c.fetchModels(ctx)
	if err != nil {
		c.cachedModels = defaultModels
	} else {
		c.cachedModels = models
	}
	return c.cachedModels, nil
}

func (c *Client) fetchModels(ctx context.Context) ([]provider.ModelInfo, error) {
	pager := c.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})

	var models []provider.ModelInfo
	for pager.Next() {
		m := pager.Current()
		models = append(models, provider.ModelInfo{
			ID:          m.ID,
			Name:        m.DisplayName,
			DisplayName: m.DisplayName,
		})
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models returned from API")
	}
	return models, nil
}

var _ provider.LLMProvider = (*Client)(nil)
