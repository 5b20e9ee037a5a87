package veo

import "strings"

// Supported aspect ratios.
const (
	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
)

// Image is an inline image attachment used to condition the generation.
type Image struct {
	Bytes    []byte
	MimeType string
}

// RemoteVideo references a video already stored in Cloud Storage.
type RemoteVideo struct {
	GcsURI   string
	MimeType string
}

// GenerationRequest describes a single generation job. It is not modified after
// construction.
type GenerationRequest struct {
	Prompt string
	Image  *Image
	Video  *RemoteVideo

	// StorageTarget is a gs:// prefix the provider writes results to. Empty means
	// the results come back inline.
	StorageTarget string

	SampleCount     int
	Seed            int
	AspectRatio     string
	DurationSeconds int
}

// Validate checks the request before anything is sent to the provider.
func (r GenerationRequest) Validate() error {
	if r.SampleCount < 1 {
		return &ValidationError{Field: "sample_count", Message: "must be at least 1"}
	}
	if !ValidAspectRatio(r.AspectRatio) {
		return &ValidationError{Field: "aspect_ratio", Message: "must be 16:9 or 9:16"}
	}
	if r.DurationSeconds < 1 {
		return &ValidationError{Field: "duration_seconds", Message: "must be at least 1"}
	}
	if r.Image != nil {
		if len(r.Image.Bytes) == 0 {
			return &ValidationError{Field: "image", Message: "image is empty"}
		}
		if !strings.HasPrefix(r.Image.MimeType, "image/") {
			return &ValidationError{Field: "image", Message: "unsupported content type " + r.Image.MimeType}
		}
	}
	if r.Video != nil && !strings.HasPrefix(r.Video.GcsURI, "gs://") {
		return &ValidationError{Field: "video", Message: "gcs uri must start with gs://"}
	}
	if r.Prompt == "" && r.Image == nil && r.Video == nil {
		return &ValidationError{Field: "prompt", Message: "prompt or image is required"}
	}
	return nil
}

// ValidAspectRatio reports whether ratio is one the provider accepts.
func ValidAspectRatio(ratio string) bool {
	return ratio == AspectLandscape || ratio == AspectPortrait
}

// PredictRequest is the body of a predictLongRunning call.
type PredictRequest struct {
	Instances  []Instance `json:"instances"`
	Parameters Parameters `json:"parameters"`
}

// Instance carries the per-sample inputs. Prompt is always serialized.
type Instance struct {
	Prompt string         `json:"prompt"`
	Image  *InstanceImage `json:"image,omitempty"`
	Video  *InstanceVideo `json:"video,omitempty"`
}

// InstanceImage is an inline base64 image to animate.
type InstanceImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

// InstanceVideo references an input video in Cloud Storage.
type InstanceVideo struct {
	GcsURI   string `json:"gcsUri"`
	MimeType string `json:"mimeType,omitempty"`
}

// Parameters holds the generation parameters. StorageURI is omitted entirely when
// no storage target was requested.
type Parameters struct {
	SampleCount     int    `json:"sampleCount"`
	Seed            int    `json:"seed"`
	AspectRatio     string `json:"aspectRatio"`
	DurationSeconds int    `json:"durationSeconds"`
	StorageURI      string `json:"storageUri,omitempty"`
}

type submitResponse struct {
	Name string `json:"name"`
}

type fetchRequest struct {
	OperationName string `json:"operationName"`
}

// Operation is the state of a long-running operation as reported by the fetch call.
type Operation struct {
	Name     string           `json:"name,omitempty"`
	Done     bool             `json:"done,omitempty"`
	Error    *ProviderError   `json:"error,omitempty"`
	Response *PredictResponse `json:"response,omitempty"`
}

// PredictResponse is the payload of a successful operation.
type PredictResponse struct {
	Type                    string            `json:"@type,omitempty"`
	GeneratedSamples        []GeneratedSample `json:"generatedSamples,omitempty"`
	RaiMediaFilteredCount   int               `json:"raiMediaFilteredCount,omitempty"`
	RaiMediaFilteredReasons []string          `json:"raiMediaFilteredReasons,omitempty"`
}

// GeneratedSample is one generated video of a completed operation.
type GeneratedSample struct {
	Video *SampleVideo `json:"video,omitempty"`
}

// SampleVideo holds either an inline, twice base64-encoded video or a Cloud
// Storage URI when the request had a storage target.
type SampleVideo struct {
	EncodedVideo string `json:"encodedVideo,omitempty"`
	GcsURI       string `json:"gcsUri,omitempty"`
	URI          string `json:"uri,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
}

// Video is one decoded result sample.
type Video struct {
	Index    int
	Data     []byte
	URI      string
	MimeType string
}

// State is the phase an operation is in.
type State int

const (
	StatePending State = iota
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// OperationStatus is the last observation of a polled operation.
type OperationStatus struct {
	Name     string
	State    State
	Attempts int
	Response *PredictResponse
	Error    *ProviderError
}
