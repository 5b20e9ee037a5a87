package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rossigee/veo-video-proxy/internal/veo"
	"github.com/rossigee/veo-video-proxy/pkg/types"
)

// MsgDownloadFailed is shown when an attachment can not be retrieved.
const MsgDownloadFailed = "Error downloading the image."

var (
	// ErrDownload matches every attachment download failure.
	ErrDownload = errors.New("attachment download failed")
	// ErrNonPublicHost is returned when an attachment URL resolves to a loopback,
	// private or link-local address.
	ErrNonPublicHost = errors.New("attachment host is not public")
)

// DefaultMaxImageBytes bounds the size of a downloaded attachment.
const DefaultMaxImageBytes = 20 << 20

// Fetcher downloads image attachments over HTTP.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPClient returns the client used for attachment downloads. Unless
// allowPrivate is set, connections and redirects to non-public addresses are refused.
func NewHTTPClient(allowPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{Timeout: 30 * time.Second, Transport: transport}
	if allowPrivate {
		return client
	}

	// a proxy would be dialed instead of the attachment host
	transport.Proxy = nil
	dialer.Control = refuseNonPublic
	transport.DialContext = dialer.DialContext
	client.CheckRedirect = checkRedirectHost
	return client
}

// NewFetcher creates a fetcher. A nil client gets NewHTTPClient(false);
// maxBytes <= 0 uses DefaultMaxImageBytes.
func NewFetcher(client *http.Client, maxBytes int64) *Fetcher {
	if client == nil {
		client = NewHTTPClient(false)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch downloads the attachment and returns it as a generation image.
func (f *Fetcher) Fetch(ctx context.Context, attachment types.Attachment) (*veo.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachment.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrDownload, f.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDownload)
	}

	mimeType := mediaType(attachment.ContentType)
	if !IsImage(mimeType) {
		mimeType = mediaType(resp.Header.Get("Content-Type"))
	}
	if !IsImage(mimeType) {
		mimeType = http.DetectContentType(data)
	}

	logrus.WithFields(logrus.Fields{
		"url":       attachment.URL,
		"bytes":     len(data),
		"mime_type": mimeType,
	}).Debug("Downloaded attachment")

	return &veo.Image{Bytes: data, MimeType: mimeType}, nil
}

func publicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

// refuseNonPublic runs after name resolution, so it sees the address actually dialed.
func refuseNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !publicIP(ip) {
		return fmt.Errorf("%w: %s", ErrNonPublicHost, host)
	}
	return nil
}

func checkRedirectHost(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	host := req.URL.Hostname()
	addrs, err := net.DefaultResolver.LookupIPAddr(req.Context(), host)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if !publicIP(addr.IP) {
			return fmt.Errorf("%w: %s", ErrNonPublicHost, host)
		}
	}
	return nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}
