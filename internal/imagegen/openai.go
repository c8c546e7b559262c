package imagegen

import (
	"context"
	"net/http"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/opensuperagent/superagent/internal/httpx"
)

// OpenAI generates images with the OpenAI Images API.
type OpenAI struct {
	APIKey string
	Model  string
	// BaseURL overrides the SDK default endpoint.
	BaseURL    string
	HTTPClient *http.Client
	Retry      httpx.Retry
}

func (o OpenAI) client() openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(o.APIKey),
		option.WithMaxRetries(max(o.Retry.Attempts, 0)),
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	if o.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(o.HTTPClient))
	}
	return openai.NewClient(opts...)
}

// Generate implements Generator.
func (o OpenAI) Generate(ctx context.Context, req Request) (Result, error) {
	req, err := req.validate()
	if err != nil {
		return Result{}, err
	}

	client := o.client()
	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(o.Model),
		N:      openai.Int(int64(req.N)),
		Size:   openai.ImageGenerateParamsSize(req.Size),
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Provider: ProviderOpenAI, Model: o.Model}
	for _, d := range resp.Data {
		img := Image{URL: d.URL, B64: d.B64JSON, MIMEType: "image/png"}
		if img.URL == "" && img.B64 == "" {
			continue
		}
		res.Images = append(res.Images, img)
		if res.RevisedPrompt == "" {
			res.RevisedPrompt = d.RevisedPrompt
		}
	}
	if len(res.Images) == 0 {
		return res, ErrNoImage
	}
	return res, nil
}
