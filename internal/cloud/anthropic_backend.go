package cloud

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lalosystems/lalocore/internal/inference"
	"github.com/lalosystems/lalocore/internal/lalerrors"
)

// AnthropicBackend implements Backend for cloud_anthropic Model
// Descriptors.
type AnthropicBackend struct {
	ModelOverride string
}

func (b *AnthropicBackend) client(creds Credentials) anthropic.Client {
	return anthropic.NewClient(option.WithAPIKey(creds.APIKey))
}

func (b *AnthropicBackend) modelName(req inference.GenerateRequest) anthropic.Model {
	if b.ModelOverride != "" {
		return anthropic.Model(b.ModelOverride)
	}
	return anthropic.Model(req.ModelID)
}

func (b *AnthropicBackend) params(req inference.GenerateRequest) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return anthropic.MessageNewParams{
		Model:     b.modelName(req),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
}

// Generate performs a single non-streaming message call.
func (b *AnthropicBackend) Generate(ctx context.Context, creds Credentials, req inference.GenerateRequest) (string, error) {
	client := b.client(creds)
	msg, err := client.Messages.New(ctx, b.params(req))
	if err != nil {
		return "", classifyAnthropicErr(err)
	}
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// GenerateStream performs a streaming message call.
func (b *AnthropicBackend) GenerateStream(ctx context.Context, creds Credentials, req inference.GenerateRequest) (<-chan *inference.TokenChunk, error) {
	client := b.client(creds)
	stream := client.Messages.NewStreaming(ctx, b.params(req))

	out := make(chan *inference.TokenChunk, 8)
	go func() {
		defer close(out)
		for stream.Next() {
			select {
			case <-ctx.Done():
				out <- &inference.TokenChunk{Error: lalerrors.New(lalerrors.KindCancelled, "stream cancelled")}
				return
			default:
			}
			event := stream.Current()
			if delta := event.Delta; delta.Text != "" {
				out <- &inference.TokenChunk{Text: delta.Text}
			}
		}
		if err := stream.Err(); err != nil {
			out <- &inference.TokenChunk{Error: classifyAnthropicErr(err)}
			return
		}
		out <- &inference.TokenChunk{Done: true}
	}()
	return out, nil
}

func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return lalerrors.Wrap(lalerrors.KindAuthFailed, err, "anthropic authentication failed")
		case 402:
			return lalerrors.Wrap(lalerrors.KindQuotaExhausted, err, "anthropic quota exhausted")
		case 429:
			return lalerrors.Wrap(lalerrors.KindRateLimited, err, "anthropic rate limited")
		default:
			return lalerrors.Wrap(lalerrors.KindProviderError, err, "anthropic request failed")
		}
	}
	return lalerrors.Wrap(lalerrors.KindOf(err), err, "anthropic request failed")
}
