package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
)

// CloudPlatformScope is the OAuth scope required by the Vertex AI endpoints.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Transport performs authenticated JSON POST calls against the provider.
// A non-2xx status or network failure is returned as *TransportError.
type Transport interface {
	Post(ctx context.Context, endpoint string, body, out any) error
}

// HTTPTransport is a Transport backed by net/http and a Google token provider.
type HTTPTransport struct {
	client *http.Client
	tokens auth.TokenProvider
}

// NewHTTPTransport creates a transport that authenticates every call with tokens.
// A nil client gets a default one with a 60 second timeout.
func NewHTTPTransport(client *http.Client, tokens auth.TokenProvider) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPTransport{client: client, tokens: tokens}
}

// CredentialsOptions selects where bearer tokens come from.
type CredentialsOptions struct {
	// AccessToken, when set, is used as-is and never refreshed.
	AccessToken string
	// CredentialsFile is a service account or authorized user JSON file.
	CredentialsFile string
}

// NewTokenProvider returns a cached token provider. Without a static token or a
// credentials file it falls back to Application Default Credentials.
func NewTokenProvider(opts CredentialsOptions) (auth.TokenProvider, error) {
	if opts.AccessToken != "" {
		return StaticToken(opts.AccessToken), nil
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes:          []string{CloudPlatformScope},
		CredentialsFile: opts.CredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect google credentials: %w", err)
	}
	return creds, nil
}

type staticToken string

func (s staticToken) Token(context.Context) (*auth.Token, error) {
	return &auth.Token{Value: string(s), Type: "Bearer"}, nil
}

// StaticToken returns a token provider that always yields token.
func StaticToken(token string) auth.TokenProvider {
	return auth.NewCachedTokenProvider(staticToken(token), &auth.CachedTokenProviderOptions{
		DisableAutoRefresh: true,
	})
}

// Post sends body as JSON to endpoint and decodes the JSON reply into out.
func (t *HTTPTransport) Post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	token, err := t.tokens.Token(ctx)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("refresh token: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("create request: %w", err)}
	}
	tokenType := token.Type
	if tokenType == "" {
		tokenType = "Bearer"
	}
	req.Header.Set("Authorization", tokenType+" "+token.Value)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
