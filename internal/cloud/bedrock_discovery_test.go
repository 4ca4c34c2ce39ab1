package cloud

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"github.com/stretchr/testify/require"
)

func TestBedrockModelIsUsableFiltersLifecycleAndProvider(t *testing.T) {
	active := &types.FoundationModelSummary{
		ModelId:        aws.String("anthropic.claude-3-sonnet"),
		ProviderName:   aws.String("Anthropic"),
		ModelLifecycle: &types.FoundationModelLifecycle{Status: "ACTIVE"},
	}
	legacy := &types.FoundationModelSummary{
		ModelId:        aws.String("amazon.titan-text-legacy"),
		ProviderName:   aws.String("Amazon"),
		ModelLifecycle: &types.FoundationModelLifecycle{Status: "LEGACY"},
	}

	require.True(t, bedrockModelIsUsable(active, nil))
	require.False(t, bedrockModelIsUsable(legacy, nil))
	require.True(t, bedrockModelIsUsable(active, []string{"anthropic"}))
	require.False(t, bedrockModelIsUsable(active, []string{"meta"}))
	require.False(t, bedrockModelIsUsable(nil, nil))
}

func TestBedrockContextWindowKnownFamilies(t *testing.T) {
	require.Equal(t, 200000, bedrockContextWindow("anthropic.claude-3-sonnet"))
	require.Equal(t, 8192, bedrockContextWindow("meta.llama3-8b"))
	require.Equal(t, 32768, bedrockContextWindow("mistral.mixtral-8x7b"))
	require.Equal(t, 4096, bedrockContextWindow("some.unknown-model"))
}
