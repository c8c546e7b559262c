package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Gemini generates images with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator. An empty baseURL uses the public
// endpoint.
func NewGemini(ctx context.Context, apiKey, model, baseURL string, hc *http.Client) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate implements Generator. Gemini returns one image per call, so N
// calls are made sequentially.
func (g *Gemini) Generate(ctx context.Context, req Request) (Result, error) {
	req, err := req.validate()
	if err != nil {
		return Result{}, err
	}

	res := Result{Provider: ProviderGemini, Model: g.model}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	var texts []string
	for range req.N {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
		if err != nil {
			if strings.Contains(err.Error(), "Visibility check") {
				return res, fmt.Errorf("%w: %w", ErrVisibilityCheck, err)
			}
			return res, fmt.Errorf("gemini: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch {
				case part.InlineData != nil && len(part.InlineData.Data) > 0:
					res.Images = append(res.Images, Image{
						B64:      base64.StdEncoding.EncodeToString(part.InlineData.Data),
						MIMEType: part.InlineData.MIMEType,
					})
				case part.Text != "":
					texts = append(texts, part.Text)
				}
			}
		}
	}
	res.Text = strings.TrimSpace(strings.Join(texts, "\n"))

	if len(res.Images) == 0 {
		if strings.Contains(res.Text, "Visibility check") {
			return res, ErrVisibilityCheck
		}
		return res, ErrNoImage
	}
	return res, nil
}
