package imagegen

import (
	"context"
	"strconv"
	"strings"

	"github.com/opensuperagent/superagent/internal/fal"
)

// Fal generates images through a fal.ai queue model.
type Fal struct {
	Client fal.Client
	Model  string
}

// Generate implements Generator.
func (f Fal) Generate(ctx context.Context, req Request) (Result, error) {
	req, err := req.validate()
	if err != nil {
		return Result{}, err
	}

	input := map[string]any{
		"prompt":     req.Prompt,
		"num_images": req.N,
	}
	if w, h, ok := parseSize(req.Size); ok {
		input["image_size"] = map[string]int{"width": w, "height": h}
	}

	var out fal.ImageOutput
	if _, err := f.Client.Run(ctx, f.Model, input, &out); err != nil {
		return Result{}, err
	}

	res := Result{Provider: ProviderFal, Model: f.Model}
	for _, img := range out.Images {
		mime := img.ContentType
		if mime == "" {
			mime = "image/jpeg"
		}
		res.Images = append(res.Images, Image{URL: img.URL, MIMEType: mime})
	}
	if len(res.Images) == 0 {
		return res, ErrNoImage
	}
	return res, nil
}

func parseSize(size string) (int, int, bool) {
	ws, hs, ok := strings.Cut(strings.ToLower(size), "x")
	if !ok {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
