package client

import (
	"context"

	"github.com/menta2k/pawcrop/pkg/types"
)

// VisionClient is a vision model backend able to locate a pet in a
// base64-encoded photo.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
