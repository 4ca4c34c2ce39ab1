package cloud

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lalosystems/lalocore/internal/inference"
	"github.com/lalosystems/lalocore/internal/lalerrors"
)

// OpenAIBackend implements Backend for cloud_openai Model Descriptors.
type OpenAIBackend struct {
	// ModelOverride lets callers pin the underlying OpenAI model name when
	// it differs from the LALO model id; empty uses req.ModelID verbatim.
	ModelOverride string
}

func (b *OpenAIBackend) client(creds Credentials) *openai.Client {
	return openai.NewClient(creds.APIKey)
}

func (b *OpenAIBackend) modelName(req inference.GenerateRequest) string {
	if b.ModelOverride != "" {
		return b.ModelOverride
	}
	return req.ModelID
}

// Generate performs a single non-streaming chat completion.
func (b *OpenAIBackend) Generate(ctx context.Context, creds Credentials, req inference.GenerateRequest) (string, error) {
	client := b.client(creds)
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.modelName(req),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxOutputTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", lalerrors.New(lalerrors.KindProviderError, "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream performs a streaming chat completion.
func (b *OpenAIBackend) GenerateStream(ctx context.Context, creds Credentials, req inference.GenerateRequest) (<-chan *inference.TokenChunk, error) {
	client := b.client(creds)
	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: b.modelName(req),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxOutputTokens,
		Temperature: float32(req.Temperature),
		Stream:      true,
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}

	out := make(chan *inference.TokenChunk, 8)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			select {
			case <-ctx.Done():
				out <- &inference.TokenChunk{Error: lalerrors.New(lalerrors.KindCancelled, "stream cancelled")}
				return
			default:
			}
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				out <- &inference.TokenChunk{Done: true}
				return
			}
			if err != nil {
				out <- &inference.TokenChunk{Error: classifyOpenAIErr(err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			out <- &inference.TokenChunk{Text: resp.Choices[0].Delta.Content}
		}
	}()
	return out, nil
}

func classifyOpenAIErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return lalerrors.Wrap(lalerrors.KindAuthFailed, err, "openai authentication failed")
		case 402:
			return lalerrors.Wrap(lalerrors.KindQuotaExhausted, err, "openai quota exhausted")
		case 429:
			return lalerrors.Wrap(lalerrors.KindRateLimited, err, "openai rate limited")
		default:
			return lalerrors.Wrap(lalerrors.KindProviderError, err, "openai request failed")
		}
	}
	return lalerrors.Wrap(lalerrors.KindOf(err), err, "openai request failed")
}
