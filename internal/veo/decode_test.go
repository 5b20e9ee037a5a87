package veo

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp4Header starts with NUL bytes, which are never valid base64, so a single
// decode of a once-encoded value can not be mistaken for success.
var mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00}

func doubleEncode(b []byte) string {
	once := base64.StdEncoding.EncodeToString(b)
	return base64.StdEncoding.EncodeToString([]byte(once))
}

func sampleResponse(encoded ...string) *PredictResponse {
	resp := &PredictResponse{}
	for _, e := range encoded {
		resp.GeneratedSamples = append(resp.GeneratedSamples, GeneratedSample{Video: &SampleVideo{EncodedVideo: e}})
	}
	return resp
}

func TestDecode_DoubleEncodedRoundTrip(t *testing.T) {
	data, err := Decode(sampleResponse(doubleEncode(mp4Header)))

	require.NoError(t, err)
	assert.Equal(t, mp4Header, data)
}

func TestDecode_SingleEncodedFails(t *testing.T) {
	data, err := Decode(sampleResponse(base64.StdEncoding.EncodeToString(mp4Header)))

	assert.Nil(t, data)
	assert.ErrorIs(t, err, ErrMalformedEncoding)
	assert.NotErrorIs(t, err, ErrUnexpectedShape)
}

func TestDecode_OuterLayerNotBase64(t *testing.T) {
	_, err := Decode(sampleResponse("!!not base64!!"))

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, ErrMalformedEncoding, decErr.Kind)
	assert.Contains(t, err.Error(), "outer layer")
}

func TestDecode_UnexpectedShape(t *testing.T) {
	tests := []struct {
		name string
		resp *PredictResponse
	}{
		{name: "nil response", resp: nil},
		{name: "no samples", resp: &PredictResponse{}},
		{name: "sample without video", resp: &PredictResponse{GeneratedSamples: []GeneratedSample{{}}}},
		{name: "video without encoding", resp: &PredictResponse{GeneratedSamples: []GeneratedSample{{Video: &SampleVideo{}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Decode(tt.resp)
			assert.Nil(t, data)
			assert.ErrorIs(t, err, ErrUnexpectedShape)
		})
	}
}

func TestDecodeAll_EverySample(t *testing.T) {
	second := []byte{0x00, 0x01, 0x02, 0xff}
	resp := sampleResponse(doubleEncode(mp4Header), doubleEncode(second))

	videos, err := DecodeAll(resp)

	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, 0, videos[0].Index)
	assert.Equal(t, mp4Header, videos[0].Data)
	assert.Equal(t, 1, videos[1].Index)
	assert.Equal(t, second, videos[1].Data)
	assert.Equal(t, "video/mp4", videos[1].MimeType)
}

func TestDecodeAll_StorageSamples(t *testing.T) {
	resp := &PredictResponse{GeneratedSamples: []GeneratedSample{
		{Video: &SampleVideo{GcsURI: "gs://bucket/out/sample_0.mp4", MimeType: "video/mp4"}},
	}}

	videos, err := DecodeAll(resp)

	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Nil(t, videos[0].Data)
	assert.Equal(t, "gs://bucket/out/sample_0.mp4", videos[0].URI)
}

func TestDecodeAll_OneBadSampleFailsAll(t *testing.T) {
	resp := sampleResponse(doubleEncode(mp4Header), base64.StdEncoding.EncodeToString(mp4Header))

	videos, err := DecodeAll(resp)

	assert.Nil(t, videos)
	assert.ErrorIs(t, err, ErrMalformedEncoding)
}
