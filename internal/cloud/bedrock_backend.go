package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/lalosystems/lalocore/internal/inference"
	"github.com/lalosystems/lalocore/internal/lalerrors"
)

// BedrockBackend implements Backend for cloud_other Model Descriptors
// backed by AWS Bedrock. It speaks the Anthropic-on-Bedrock request/
// response shape, the most common Bedrock text model family; a
// multi-provider payload dispatcher would branch on model id prefix, left
// as a documented extension point.
type BedrockBackend struct{}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (b *BedrockBackend) client(ctx context.Context, creds Credentials) (*bedrockruntime.Client, error) {
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, lalerrors.Wrap(lalerrors.KindProviderError, err, "failed to load aws config")
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

func (b *BedrockBackend) payload(req inference.GenerateRequest) ([]byte, error) {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: req.Prompt}},
	}
	return json.Marshal(body)
}

// Generate performs a single non-streaming InvokeModel call.
func (b *BedrockBackend) Generate(ctx context.Context, creds Credentials, req inference.GenerateRequest) (string, error) {
	client, err := b.client(ctx, creds)
	if err != nil {
		return "", err
	}
	payload, err := b.payload(req)
	if err != nil {
		return "", lalerrors.Wrap(lalerrors.KindInternal, err, "failed to build bedrock request")
	}

	out, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		Body:        payload,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", classifyBedrockErr(err)
	}

	var decoded bedrockResponse
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return "", lalerrors.Wrap(lalerrors.KindProviderError, err, "failed to decode bedrock response")
	}
	var text string
	for _, block := range decoded.Content {
		text += block.Text
	}
	return text, nil
}

// GenerateStream performs a streaming InvokeModelWithResponseStream call.
func (b *BedrockBackend) GenerateStream(ctx context.Context, creds Credentials, req inference.GenerateRequest) (<-chan *inference.TokenChunk, error) {
	client, err := b.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	payload, err := b.payload(req)
	if err != nil {
		return nil, lalerrors.Wrap(lalerrors.KindInternal, err, "failed to build bedrock request")
	}

	resp, err := client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(req.ModelID),
		Body:        payload,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, classifyBedrockErr(err)
	}

	out := make(chan *inference.TokenChunk, 8)
	go func() {
		defer close(out)
		stream := resp.GetStream()
		defer stream.Close()
		for event := range stream.Events() {
			select {
			case <-ctx.Done():
				out <- &inference.TokenChunk{Error: lalerrors.New(lalerrors.KindCancelled, "stream cancelled")}
				return
			default:
			}
			chunk, ok := event.(*bedrockruntime.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			var decoded bedrockResponse
			if err := json.Unmarshal(chunk.Value.Bytes, &decoded); err != nil {
				continue
			}
			for _, block := range decoded.Content {
				if block.Text != "" {
					out <- &inference.TokenChunk{Text: block.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- &inference.TokenChunk{Error: classifyBedrockErr(err)}
			return
		}
		out <- &inference.TokenChunk{Done: true}
	}()
	return out, nil
}

func classifyBedrockErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "UnrecognizedClientException":
			return lalerrors.Wrap(lalerrors.KindAuthFailed, err, "bedrock authentication failed")
		case "ThrottlingException", "TooManyRequestsException":
			return lalerrors.Wrap(lalerrors.KindRateLimited, err, "bedrock rate limited")
		case "ServiceQuotaExceededException":
			return lalerrors.Wrap(lalerrors.KindQuotaExhausted, err, "bedrock quota exhausted")
		case "ModelTimeoutException":
			return lalerrors.Wrap(lalerrors.KindGenerationTimeout, err, "bedrock generation timed out")
		case "ResourceNotFoundException", "ModelNotReadyException":
			return lalerrors.Wrap(lalerrors.KindModelUnavailable, err, "bedrock model not available")
		default:
			return lalerrors.Wrap(lalerrors.KindProviderError, err, fmt.Sprintf("bedrock error: %s", apiErr.ErrorCode()))
		}
	}
	return lalerrors.Wrap(lalerrors.KindOf(err), err, "bedrock request failed")
}
