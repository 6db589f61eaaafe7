package compute

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"mesh3d/internal/domain"
	"mesh3d/internal/infra"
)

const (
	defaultGenerateTimeout = 10 * time.Minute
	healthCacheTTL         = 30 * time.Second
)

// Options controls how the inference client is configured.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the inference sidecar over HTTP. The sidecar owns the
// model weights and the GPU; this client only ships the prepared image and
// the generation knobs across and brings the scene bytes back.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger

	mu        sync.Mutex
	loaded    bool
	checkedAt time.Time
}

// NewClient validates the options and returns a configured client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("compute: base URL is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultGenerateTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

type generateRequest struct {
	Image          string  `json:"image"`
	Seed           int     `json:"seed"`
	OutputFormat   string  `json:"output_format"`
	WithTexture    bool    `json:"with_texture"`
	TextureSize    int     `json:"texture_size"`
	Simplify       float64 `json:"simplify"`
	InferenceSteps int     `json:"inference_steps"`
	NViews         int     `json:"nviews"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Format   string `json:"format"`
	Vertices int    `json:"vertices"`
	Faces    int    `json:"faces"`
	Error    string `json:"error"`
}

// Generate posts the prepared image to the sidecar and decodes the result.
func (c *Client) Generate(ctx context.Context, img *image.RGBA, params domain.GenerateParams) (Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("compute: encode image: %w", err)
	}

	payload := generateRequest{
		Image:          base64.StdEncoding.EncodeToString(buf.Bytes()),
		Seed:           params.Seed,
		OutputFormat:   string(params.OutputFormat),
		WithTexture:    params.WithTexture,
		TextureSize:    params.TextureSize,
		Simplify:       params.Simplify,
		InferenceSteps: params.InferenceSteps,
		NViews:         params.NViews,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("compute: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("compute: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("compute: call pipeline: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("compute: read response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, fmt.Errorf("compute: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || decoded.Error != "" {
		msg := decoded.Error
		if msg == "" {
			msg = fmt.Sprintf("pipeline returned status %d", resp.StatusCode)
		}
		return Result{}, fmt.Errorf("compute: %s", msg)
	}

	data, err := base64.StdEncoding.DecodeString(decoded.Model)
	if err != nil {
		return Result{}, fmt.Errorf("compute: decode model payload: %w", err)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("compute: pipeline produced no mesh")
	}

	format := domain.OutputFormat(decoded.Format)
	if format == "" {
		format = params.OutputFormat
	}
	return Result{Data: data, Format: format, Vertices: decoded.Vertices, Faces: decoded.Faces}, nil
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Loaded reports whether the sidecar has its model in memory. The answer
// is cached briefly since health is polled by monitoring.
func (c *Client) Loaded() bool {
	c.mu.Lock()
	if time.Since(c.checkedAt) < healthCacheTTL {
		loaded := c.loaded
		c.mu.Unlock()
		return loaded
	}
	c.mu.Unlock()

	loaded := c.checkHealth()

	c.mu.Lock()
	c.loaded = loaded
	c.checkedAt = time.Now()
	c.mu.Unlock()
	return loaded
}

func (c *Client) checkHealth() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var decoded healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false
	}
	return decoded.ModelLoaded
}

// Release asks the sidecar to drop transient accelerator allocations from
// the previous run. Best effort: a sidecar without the endpoint manages
// its own memory.
func (c *Client) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/release", nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug().Err(err).Msg("compute: release request failed")
		}
		return
	}
	resp.Body.Close()
}
