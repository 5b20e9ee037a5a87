package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rossigee/veo-video-proxy/pkg/types"
)

func TestValidateMessage(t *testing.T) {
	image := types.Attachment{ContentType: "image/png", URL: "https://cdn.example.com/a.png"}

	tests := []struct {
		name        string
		text        string
		attachments []types.Attachment
		wantMsg     string
	}{
		{name: "text only", text: "a cat running"},
		{name: "image only", attachments: []types.Attachment{image}},
		{name: "text and image", text: "make it move", attachments: []types.Attachment{image}},
		{name: "nothing", text: "   ", wantMsg: MsgEmptyMessage},
		{name: "two images", attachments: []types.Attachment{image, image}, wantMsg: MsgTooManyAttachment},
		{
			name:        "pdf attachment",
			text:        "summarise",
			attachments: []types.Attachment{{ContentType: "application/pdf", URL: "https://cdn.example.com/a.pdf"}},
			wantMsg:     MsgUnsupportedType,
		},
		{
			name:        "image without url",
			attachments: []types.Attachment{{ContentType: "image/jpeg"}},
			wantMsg:     MsgMissingURL,
		},
		{
			name:        "image with blank url",
			text:        "animate",
			attachments: []types.Attachment{{ContentType: "image/png", URL: "  "}},
			wantMsg:     MsgMissingURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text, tt.attachments)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			var rejection *RejectionError
			require.True(t, errors.As(err, &rejection))
			assert.Equal(t, tt.wantMsg, rejection.Message)
		})
	}
}

func TestFetcher_Fetch(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(png)
		case "/large.png":
			_, _ = w.Write(make([]byte, 64))
		case "/empty.png":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), 32)

	t.Run("downloads image", func(t *testing.T) {
		img, err := fetcher.Fetch(context.Background(), types.Attachment{
			ContentType: "image/png; charset=binary",
			URL:         server.URL + "/ok.png",
		})
		require.NoError(t, err)
		assert.Equal(t, png, img.Bytes)
		assert.Equal(t, "image/png", img.MimeType)
	})

	t.Run("uses response type when attachment type is missing", func(t *testing.T) {
		img, err := fetcher.Fetch(context.Background(), types.Attachment{
			ContentType: "",
			URL:         server.URL + "/ok.png",
		})
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.MimeType)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), types.Attachment{ContentType: "image/png", URL: server.URL + "/missing.png"})
		assert.ErrorIs(t, err, ErrDownload)
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("too large", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), types.Attachment{ContentType: "image/png", URL: server.URL + "/large.png"})
		assert.ErrorIs(t, err, ErrDownload)
		assert.Contains(t, err.Error(), "exceeds 32 bytes")
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), types.Attachment{ContentType: "image/png", URL: server.URL + "/empty.png"})
		assert.ErrorIs(t, err, ErrDownload)
	})
}

func TestFetcher_RefusesNonPublicHosts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer server.Close()

	fetcher := NewFetcher(nil, 32)

	urls := []string{
		server.URL + "/a.png",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.1/a.png",
		"http://127.0.0.2/a.png",
		"http://0.0.0.0/a.png",
	}
	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			_, err := fetcher.Fetch(context.Background(), types.Attachment{ContentType: "image/png", URL: u})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDownload)
			assert.ErrorIs(t, err, ErrNonPublicHost)
		})
	}
	assert.Zero(t, hits.Load())

	t.Run("redirect to loopback", func(t *testing.T) {
		redirector := httptest.NewServer(http.RedirectHandler(server.URL+"/a.png", http.StatusFound))
		defer redirector.Close()

		// only the redirect hop is checked here
		guarded := &Fetcher{client: redirector.Client(), maxBytes: 32}
		guarded.client.CheckRedirect = checkRedirectHost
		_, err := guarded.Fetch(context.Background(), types.Attachment{ContentType: "image/png", URL: redirector.URL})
		assert.ErrorIs(t, err, ErrNonPublicHost)
		assert.Zero(t, hits.Load())
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), types.Attachment{ContentType: "image/png", URL: "file:///etc/passwd"})
		assert.ErrorIs(t, err, ErrDownload)
	})
}

func TestFetcher_AllowPrivateHosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer server.Close()

	fetcher := NewFetcher(NewHTTPClient(true), 32)
	img, err := fetcher.Fetch(context.Background(), types.Attachment{URL: server.URL + "/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
}
