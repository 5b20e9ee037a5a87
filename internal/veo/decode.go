package veo

import (
	"encoding/base64"
	"fmt"
)

// Decode returns the raw bytes of the first generated sample.
//
// The provider base64-encodes the video twice, so the value is decoded twice;
// a value that was only encoded once fails the second pass.
func Decode(resp *PredictResponse) ([]byte, error) {
	if resp == nil || len(resp.GeneratedSamples) == 0 {
		return nil, &DecodeError{Kind: ErrUnexpectedShape, Detail: "no generated samples"}
	}
	sample := resp.GeneratedSamples[0]
	if sample.Video == nil || sample.Video.EncodedVideo == "" {
		return nil, &DecodeError{Kind: ErrUnexpectedShape, Detail: "sample 0 has no encoded video"}
	}
	return decodeTwice(sample.Video.EncodedVideo)
}

// DecodeAll decodes every generated sample. Samples written to Cloud Storage are
// returned with their URI and no data.
func DecodeAll(resp *PredictResponse) ([]Video, error) {
	if resp == nil || len(resp.GeneratedSamples) == 0 {
		return nil, &DecodeError{Kind: ErrUnexpectedShape, Detail: "no generated samples"}
	}

	videos := make([]Video, 0, len(resp.GeneratedSamples))
	for idx, sample := range resp.GeneratedSamples {
		if sample.Video == nil {
			return nil, &DecodeError{Kind: ErrUnexpectedShape, Detail: fmt.Sprintf("sample %d has no video", idx)}
		}
		video := Video{Index: idx, MimeType: sample.Video.MimeType}
		if video.MimeType == "" {
			video.MimeType = "video/mp4"
		}

		switch {
		case sample.Video.EncodedVideo != "":
			data, err := decodeTwice(sample.Video.EncodedVideo)
			if err != nil {
				return nil, err
			}
			video.Data = data
		case sample.Video.GcsURI != "":
			video.URI = sample.Video.GcsURI
		case sample.Video.URI != "":
			video.URI = sample.Video.URI
		default:
			return nil, &DecodeError{Kind: ErrUnexpectedShape, Detail: fmt.Sprintf("sample %d has no encoded video", idx)}
		}
		videos = append(videos, video)
	}
	return videos, nil
}

func decodeTwice(encoded string) ([]byte, error) {
	inner, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Kind: ErrMalformedEncoding, Detail: "outer layer", Err: err}
	}
	data, err := base64.StdEncoding.DecodeString(string(inner))
	if err != nil {
		return nil, &DecodeError{Kind: ErrMalformedEncoding, Detail: "inner layer", Err: err}
	}
	return data, nil
}
