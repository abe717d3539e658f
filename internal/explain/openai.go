package explain

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/nhle/codeinsight/internal/model"
)

// OpenAITransport is a Transport for OpenAI-compatible chat completion
// endpoints.
type OpenAITransport struct {
	client openai.Client
}

// NewOpenAITransport creates a transport for baseURL. The API key is
// supplied per request.
func NewOpenAITransport(baseURL string) *OpenAITransport {
	opts := []option.RequestOption{
		option.WithHeader("X-Title", "codeinsight"),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAITransport{client: openai.NewClient(opts...)}
}

// Stream starts a streaming chat completion for req.
func (t *OpenAITransport) Stream(ctx context.Context, req Request) DeltaStream {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}
	applyLimits(&params, req.MaxTokens, req.Temperature)

	stream := t.client.Chat.Completions.NewStreaming(ctx, params, option.WithAPIKey(req.APIKey))
	return &openAIStream{stream: stream}
}

// Complete runs a single chat completion over req.Messages.
func (t *OpenAITransport) Complete(ctx context.Context, req ChatRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	applyLimits(&params, req.MaxTokens, req.Temperature)

	resp, err := t.client.Chat.Completions.New(ctx, params, option.WithAPIKey(req.APIKey))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from model")
	}
	return resp.Choices[0].Message.Content, nil
}

func applyLimits(params *openai.ChatCompletionNewParams, maxTokens int64, temperature float64) {
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(maxTokens)
	}
	if temperature > 0 {
		params.Temperature = openai.Float(temperature)
	}
}

func toOpenAIMessages(msgs []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// openAIStream adapts an SSE chunk stream to DeltaStream.
type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	delta  string
}

func (s *openAIStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		s.delta = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (s *openAIStream) Delta() string { return s.delta }

func (s *openAIStream) Err() error { return s.stream.Err() }

func (s *openAIStream) Close() error { return s.stream.Close() }
