package cloud

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"

	"github.com/lalosystems/lalocore/internal/lalerrors"
	lalocore "github.com/lalosystems/lalocore/pkg/lalocore"
)

// DiscoveryConfig controls a live Bedrock foundation-model listing, used to
// populate ModelDescriptor candidates a config file never declared.
type DiscoveryConfig struct {
	Region string

	// AccessKeyID/SecretAccessKey/SessionToken supply explicit credentials;
	// when AccessKeyID is empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// ProviderFilter limits results to the named providers (e.g. "anthropic",
	// "meta"); empty means no filtering.
	ProviderFilter []string
}

// DiscoverBedrockModels lists ACTIVE foundation models from the Bedrock
// control plane and maps each to a ModelDescriptor with backend
// BackendCloudOther, so they can be merged into a Registry catalogue
// alongside models declared in the config file.
func DiscoverBedrockModels(ctx context.Context, cfg DiscoveryConfig) ([]lalocore.ModelDescriptor, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, lalerrors.Wrap(lalerrors.KindProviderError, err, "failed to load aws config for bedrock discovery")
	}

	client := bedrock.NewFromConfig(awsCfg)
	out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, classifyBedrockErr(err)
	}

	descriptors := make([]lalocore.ModelDescriptor, 0, len(out.ModelSummaries))
	for _, summary := range out.ModelSummaries {
		if !bedrockModelIsUsable(&summary, cfg.ProviderFilter) {
			continue
		}
		descriptors = append(descriptors, lalocore.ModelDescriptor{
			ID:                 aws.ToString(summary.ModelId),
			Backend:            lalocore.BackendCloudOther,
			FilePathOrRemote:   aws.ToString(summary.ModelId),
			ContextWindow:      bedrockContextWindow(aws.ToString(summary.ModelId)),
			RecommendedThreads: 0,
			Specialty:          lalocore.SpecialtyGeneral,
		})
	}
	return descriptors, nil
}

func bedrockModelIsUsable(summary *types.FoundationModelSummary, filter []string) bool {
	if summary == nil {
		return false
	}
	if summary.ModelLifecycle != nil {
		status := string(summary.ModelLifecycle.Status)
		if status != "" && status != "ACTIVE" {
			return false
		}
	}
	if len(filter) == 0 {
		return true
	}
	provider := strings.ToLower(aws.ToString(summary.ProviderName))
	modelID := strings.ToLower(aws.ToString(summary.ModelId))
	for _, f := range filter {
		f = strings.ToLower(f)
		if f == provider || strings.HasPrefix(modelID, f+".") {
			return true
		}
	}
	return false
}

// bedrockContextWindow returns a known context window for common Bedrock
// model families, falling back to a conservative default for the rest.
func bedrockContextWindow(modelID string) int {
	modelID = strings.ToLower(modelID)
	switch {
	case strings.Contains(modelID, "claude"):
		return 200000
	case strings.Contains(modelID, "llama3"):
		return 8192
	case strings.Contains(modelID, "mistral"), strings.Contains(modelID, "mixtral"):
		return 32768
	case strings.Contains(modelID, "command-r"):
		return 128000
	case strings.Contains(modelID, "titan"):
		return 8192
	default:
		return 4096
	}
}

// discoveryCacheTTL bounds how often a CLI invocation should be expected to
// re-list models; callers that poll should respect it rather than hammering
// the Bedrock control plane on every request.
const discoveryCacheTTL = time.Hour
