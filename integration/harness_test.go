package integration

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rossigee/veo-video-proxy/internal/api"
	"github.com/rossigee/veo-video-proxy/internal/auth"
	"github.com/rossigee/veo-video-proxy/internal/chat"
	"github.com/rossigee/veo-video-proxy/internal/jobs"
	"github.com/rossigee/veo-video-proxy/internal/metrics"
	"github.com/rossigee/veo-video-proxy/internal/veo"
	"github.com/rossigee/veo-video-proxy/pkg/types"
)

const apiToken = "integration-token"

var mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2'}

// videoFor returns the bytes the fake provider produces for sample i.
func videoFor(i int) []byte {
	return append(append([]byte{}, mp4Header...), byte('0'+i))
}

// fakeVertex imitates the predictLongRunning and fetchPredictOperation
// endpoints. The prompt selects the behaviour of the operation:
//   - contains "blocked": terminal provider error
//   - contains "garbage": video encoded only once
//   - contains "forever": never completes
//   - contains "gcs": samples carry only a gcsUri
//   - otherwise: done after two pending polls
type fakeVertex struct {
	mu         sync.Mutex
	operations map[string]*fakeOperation
	submitted  []veo.PredictRequest
	fetches    int
	failSubmit int
}

type fakeOperation struct {
	req   veo.PredictRequest
	polls int
}

func newFakeVertex() *fakeVertex {
	return &fakeVertex{operations: map[string]*fakeOperation{}}
}

func (f *fakeVertex) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer provider-token" {
		http.Error(w, `{"error":{"code":401,"message":"unauthenticated"}}`, http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, ":predictLongRunning"):
		if f.failSubmit != 0 {
			http.Error(w, `{"error":{"code":500,"message":"backend error"}}`, f.failSubmit)
			return
		}
		var req veo.PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name := fmt.Sprintf("projects/test/locations/us-central1/publishers/google/models/veo/operations/op-%d", len(f.submitted))
		f.submitted = append(f.submitted, req)
		f.operations[name] = &fakeOperation{req: req}
		writeJSON(w, map[string]string{"name": name})

	case strings.HasSuffix(r.URL.Path, ":fetchPredictOperation"):
		f.fetches++
		var body struct {
			OperationName string `json:"operationName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		op, ok := f.operations[body.OperationName]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"operation not found"}}`, http.StatusNotFound)
			return
		}
		op.polls++
		writeJSON(w, op.state(body.OperationName))

	default:
		http.NotFound(w, r)
	}
}

func (op *fakeOperation) state(name string) map[string]any {
	prompt := op.req.Instances[0].Prompt
	if strings.Contains(prompt, "forever") || op.polls <= 2 {
		return map[string]any{"name": name}
	}
	if strings.Contains(prompt, "blocked") {
		return map[string]any{"name": name, "done": true, "error": map[string]any{
			"code": 3, "message": "The prompt could not be submitted.", "status": "INVALID_ARGUMENT",
			"details": []any{map[string]any{"@type": "type.googleapis.com/google.rpc.ErrorInfo", "reason": "RAI_FILTERED"}},
		}}
	}

	samples := make([]map[string]any, 0, op.req.Parameters.SampleCount)
	for i := 0; i < op.req.Parameters.SampleCount; i++ {
		video := map[string]any{"mimeType": "video/mp4"}
		switch {
		case strings.Contains(prompt, "gcs"):
			video["gcsUri"] = fmt.Sprintf("%ssample_%d.mp4", op.req.Parameters.StorageURI, i)
		case strings.Contains(prompt, "garbage"):
			video["encodedVideo"] = base64.StdEncoding.EncodeToString(videoFor(i))
		default:
			inner := base64.StdEncoding.EncodeToString(videoFor(i))
			video["encodedVideo"] = base64.StdEncoding.EncodeToString([]byte(inner))
		}
		samples = append(samples, map[string]any{"video": video})
	}
	return map[string]any{"name": name, "done": true, "response": map[string]any{
		"@type":            "type.googleapis.com/cloud.ai.large_models.vision.GenerateVideoResponse",
		"generatedSamples": samples,
	}}
}

func (f *fakeVertex) lastSubmitted() veo.PredictRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[len(f.submitted)-1]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var pngImage = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newImageHost() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/cat.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngImage)
	})
	return httptest.NewServer(mux)
}

// harness wires the real service, job manager and API against fakes.
type harness struct {
	vertex     *fakeVertex
	vertexSrv  *httptest.Server
	imageHost  *httptest.Server
	apiSrv     *httptest.Server
	manager    *jobs.Manager
	client     *APIClient
	storageURI string
}

func newHarness(t *testing.T, pollAttempts int, storageURI string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{vertex: newFakeVertex(), storageURI: storageURI}
	h.vertexSrv = httptest.NewServer(h.vertex)
	h.imageHost = newImageHost()

	transport := veo.NewHTTPTransport(h.vertexSrv.Client(), veo.StaticToken("provider-token"))
	service := veo.NewService(veo.Config{
		ProjectID:     "test",
		Location:      "us-central1",
		Model:         "veo-2.0-generate-001",
		BaseURL:       h.vertexSrv.URL + "/v1beta1",
		StorageTarget: storageURI,
		PollAttempts:  pollAttempts,
		PollInterval:  time.Millisecond,
	}, transport)

	h.manager = jobs.NewManager(service, chat.NewFetcher(h.imageHost.Client(), 1024), jobs.Options{
		MaxConcurrent: 2,
		JobTimeout:    10 * time.Second,
		Metrics:       metrics.NewRecorder(prometheus.NewRegistry()),
	})

	validator, err := auth.NewValidator(auth.Options{Tokens: []string{apiToken}})
	require.NoError(t, err)

	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.NewHandler(h.manager, 2), validator.Middleware())
	h.apiSrv = httptest.NewServer(router)

	h.client = &APIClient{baseURL: h.apiSrv.URL, token: apiToken, httpClient: h.apiSrv.Client()}
	return h
}

func (h *harness) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.manager.Shutdown(ctx)
	h.apiSrv.Close()
	h.imageHost.Close()
	h.vertexSrv.Close()
}

// APIClient handles HTTP communication with the proxy
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func (c *APIClient) do(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

// Generate posts a message and returns the HTTP status with the decoded body.
func (c *APIClient) Generate(req types.GenerateRequest) (int, *types.GenerateResponse, *types.ErrorResponse, error) {
	resp, err := c.do(http.MethodPost, "/api/v1/generate", req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var errResp types.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return resp.StatusCode, nil, &errResp, nil
	}
	var accepted types.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return resp.StatusCode, nil, nil, err
	}
	return resp.StatusCode, &accepted, nil, nil
}

func (c *APIClient) GetJobStatus(jobID string) (*types.StatusResponse, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/status/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	var status types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *APIClient) WaitForCompletion(jobID string, timeout time.Duration) (*types.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for job %s", jobID)
		case <-ticker.C:
			status, err := c.GetJobStatus(jobID)
			if err != nil {
				return nil, err
			}
			if status.Status == types.StatusCompleted || status.Status == types.StatusFailed {
				return status, nil
			}
		}
	}
}

func (c *APIClient) Download(path string) (*http.Response, []byte, error) {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp, data, err
}
