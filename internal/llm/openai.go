package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIParams configures the OpenAI-compatible client.
type OpenAIParams struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAI is a Completer backed by the chat completions API.
type OpenAI struct {
	client  *openai.Client
	timeout time.Duration
}

// ErrNoAPIKey is returned when no key is configured.
var ErrNoAPIKey = errors.New("llm: no API key configured")

// NewOpenAI creates a client. A base URL selects any OpenAI-compatible
// server.
func NewOpenAI(p OpenAIParams) (*OpenAI, error) {
	if p.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	options := []option.RequestOption{
		option.WithAPIKey(p.APIKey),
		option.WithMaxRetries(0),
	}
	if p.BaseURL != "" {
		options = append(options, option.WithBaseURL(p.BaseURL))
	}
	client := openai.NewClient(options...)
	return &OpenAI{client: &client, timeout: p.Timeout}, nil
}

// Complete sends req as a system plus user message pair. When req carries
// a schema the response is constrained to it.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	msgs := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.User))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
	}
	if req.Schema != nil {
		body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.SchemaName,
					Description: openai.String("structured analysis of world snapshot entities"),
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
