package veo

import "encoding/base64"

// Compose builds the predictLongRunning body for req. It performs no I/O.
func Compose(req GenerationRequest) PredictRequest {
	instance := Instance{Prompt: req.Prompt}
	if req.Image != nil {
		instance.Image = &InstanceImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.Image.Bytes),
			MimeType:           req.Image.MimeType,
		}
	}
	if req.Video != nil {
		instance.Video = &InstanceVideo{
			GcsURI:   req.Video.GcsURI,
			MimeType: req.Video.MimeType,
		}
	}

	params := Parameters{
		SampleCount:     req.SampleCount,
		Seed:            req.Seed,
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.DurationSeconds,
	}
	if req.StorageTarget != "" {
		params.StorageURI = req.StorageTarget
	}

	return PredictRequest{
		Instances:  []Instance{instance},
		Parameters: params,
	}
}
