package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/fal"
	"github.com/opensuperagent/superagent/internal/httpx"
	"github.com/opensuperagent/superagent/internal/imagegen"
)

type generateImageArgs struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Size     string `json:"size"`
	N        int    `json:"n"`
}

func generateImage(set *imagegen.Set) Tool {
	return Tool{
		Definition: mcp.NewTool("generate_image",
			mcp.WithDescription("Generate images from a text prompt."),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("What the image should show")),
			mcp.WithString("provider", mcp.Description("Image provider; omit for the default"), mcp.Enum(set.Providers()...)),
			mcp.WithString("size", mcp.Description("WIDTHxHEIGHT"), mcp.DefaultString("1024x1024")),
			mcp.WithNumber("n", mcp.Description("Number of images"), mcp.Min(1), mcp.Max(4), mcp.DefaultNumber(1)),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		),
		Handler: typed(func(ctx context.Context, in generateImageArgs) (imagegen.Result, error) {
			res, err := set.Generate(ctx, in.Provider, imagegen.Request{Prompt: in.Prompt, Size: in.Size, N: in.N})
			return res, imagegen.Classify(err)
		}),
	}
}

type generateVideoArgs struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"imageUrl"`
	Duration    string `json:"duration"`
	AspectRatio string `json:"aspectRatio"`
}

type generateVideoResult struct {
	VideoURL    string `json:"videoUrl"`
	ContentType string `json:"contentType,omitempty"`
	Model       string `json:"model"`
	RequestID   string `json:"requestId"`
}

func generateVideo(client fal.Client, model string) Tool {
	return Tool{
		Definition: mcp.NewTool("generate_video",
			mcp.WithDescription("Generate a short video from a prompt and an optional start image. Takes up to a few minutes."),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("What happens in the video")),
			mcp.WithString("imageUrl", mcp.Description("Image to animate")),
			mcp.WithString("duration", mcp.Description("Length in seconds"), mcp.Enum("5", "10"), mcp.DefaultString("5")),
			mcp.WithString("aspectRatio", mcp.Enum("16:9", "9:16", "1:1"), mcp.DefaultString("16:9")),
			mcp.WithDestructiveHintAnnotation(false),
		),
		Handler: typed(func(ctx context.Context, in generateVideoArgs) (generateVideoResult, error) {
			in.Prompt = strings.TrimSpace(in.Prompt)
			if in.Prompt == "" {
				return generateVideoResult{}, errs.Invalid(errors.New("prompt is required"), "A video prompt is required.")
			}
			input := map[string]any{"prompt": in.Prompt}
			if in.ImageURL != "" {
				input["image_url"] = in.ImageURL
			}
			if in.Duration != "" {
				input["duration"] = in.Duration
			}
			if in.AspectRatio != "" {
				input["aspect_ratio"] = in.AspectRatio
			}

			var out fal.VideoOutput
			job, err := client.Run(ctx, model, input, &out)
			switch {
			case errors.Is(err, fal.ErrTimeout):
				return generateVideoResult{}, errs.Unavailable(err, "Video generation timed out, please retry.")
			case err != nil:
				return generateVideoResult{}, httpx.Classify(err, "Video generation failed.")
			case out.Video.URL == "":
				return generateVideoResult{}, errs.Upstream(errors.New("fal returned no video"), "Video generation failed.")
			}
			return generateVideoResult{
				VideoURL:    out.Video.URL,
				ContentType: out.Video.ContentType,
				Model:       model,
				RequestID:   job.RequestID,
			}, nil
		}),
	}
}
