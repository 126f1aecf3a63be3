package client

import (
	"context"
	"image"

	"github.com/wemersonPa/smart-crop/pkg/types"
)

// VisionClient is the transport boundary to a vision model server. It sends
// one prompt plus one base64-encoded image and returns the model's reply
// text verbatim; interpreting that text is the caller's job.
type VisionClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

// GarmentDetector produces garment details for a decoded image. Remote
// implementations call a vision model; local ones run heuristics in-process.
type GarmentDetector interface {
	DetectGarment(ctx context.Context, img image.Image) (*types.GarmentDetails, error)
}
