package fantasybridge

import (
	"fmt"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/azure"
	"charm.land/fantasy/providers/bedrock"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"charm.land/fantasy/providers/openrouter"
	"charm.land/fantasy/providers/vercel"

	"github.com/opensuperagent/superagent/internal/proto"
)

// Supported provider names. Any other name is treated as an
// OpenAI-compatible endpoint.
const (
	APIOpenAI     = "openai"
	APIAnthropic  = "anthropic"
	APIGoogle     = "google"
	APIAzure      = "azure"
	APIAzureAD    = "azure-ad"
	APIBedrock    = "bedrock"
	APIOpenRouter = "openrouter"
	APIVercel     = "vercel"
	APIXAI        = "xai"
)

// XAIBaseURL is used for xai when no base URL is configured.
const XAIBaseURL = "https://api.x.ai/v1"

func newProvider(cfg Config) (fantasy.Provider, error) {
	var (
		provider fantasy.Provider
		err      error
	)

	switch cfg.API {
	case APIOpenAI:
		opts := []fopenai.Option{fopenai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, fopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, fopenai.WithHTTPClient(cfg.HTTPClient))
		}
		provider, err = fopenai.New(opts...)
	case APIAnthropic:
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			// the SDK appends /v1 itself
			opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/v1")))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
		}
		provider, err = anthropic.New(opts...)
	case APIGoogle:
		opts := []fgoogle.Option{fgoogle.WithGeminiAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, fgoogle.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, fgoogle.WithHTTPClient(cfg.HTTPClient))
		}
		provider, err = fgoogle.New(opts...)
	case APIAzure, APIAzureAD:
		opts := []azure.Option{azure.WithAPIKey(cfg.APIKey), azure.WithBaseURL(cfg.BaseURL)}
		if cfg.HTTPClient != nil {
			opts = append(opts, azure.WithHTTPClient(cfg.HTTPClient))
		}
		provider, err = azure.New(opts...)
	case APIOpenRouter:
		opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
		if cfg.HTTPClient != nil {
			opts = append(opts, openrouter.WithHTTPClient(cfg.HTTPClient))
		}
		provider, err = openrouter.New(opts...)
	case APIVercel:
		opts := []vercel.Option{vercel.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, vercel.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, vercel.WithHTTPClient(cfg.HTTPClient))
		}
		provider, err = vercel.New(opts...)
	case APIBedrock:
		var opts []bedrock.Option
		if cfg.APIKey != "" {
			opts = append(opts, bedrock.WithAPIKey(cfg.APIKey))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, bedrock.WithHTTPClient(cfg.HTTPClient))
		}
		provider, err = bedrock.New(opts...)
	default:
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.API == APIXAI {
			baseURL = XAIBaseURL
		}
		opts := []fopenaicompat.Option{fopenaicompat.WithName(cfg.API)}
		if cfg.APIKey != "" {
			opts = append(opts, fopenaicompat.WithAPIKey(cfg.APIKey))
		}
		if baseURL != "" {
			opts = append(opts, fopenaicompat.WithBaseURL(baseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, fopenaicompat.WithHTTPClient(cfg.HTTPClient))
		}
		provider, err = fopenaicompat.New(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("new %s provider: %w", cfg.API, err)
	}
	return provider, nil
}

// usesOpenAIOptions reports whether the provider reads fopenai options.
func usesOpenAIOptions(api string) bool {
	switch api {
	case APIOpenAI, APIAzure, APIAzureAD:
		return true
	}
	return false
}

// isCompat reports whether the provider is a generic OpenAI-compatible
// endpoint.
func isCompat(api string) bool {
	switch api {
	case APIOpenAI, APIAzure, APIAzureAD, APIAnthropic, APIGoogle, APIOpenRouter, APIVercel, APIBedrock:
		return false
	}
	return true
}

func applyProviderOptions(call *fantasy.Call, cfg Config, req proto.Request) {
	openAIOpts := &fopenai.ProviderOptions{}
	hasOpenAIOpts := false

	if req.User != "" {
		user := req.User
		switch {
		case usesOpenAIOptions(cfg.API):
			openAIOpts.User = &user
			hasOpenAIOpts = true
		case isCompat(cfg.API):
			call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
		}
	}

	if req.MaxCompletionTokens != nil && usesOpenAIOptions(cfg.API) {
		openAIOpts.MaxCompletionTokens = req.MaxCompletionTokens
		hasOpenAIOpts = true
	}

	if hasOpenAIOpts {
		call.ProviderOptions[fopenai.Name] = openAIOpts
	}

	if cfg.API == APIGoogle && cfg.ThinkingBudget > 0 {
		call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
			ThinkingConfig: &fgoogle.ThinkingConfig{
				ThinkingBudget: fantasy.Opt(int64(cfg.ThinkingBudget)),
			},
		}
	}
}
