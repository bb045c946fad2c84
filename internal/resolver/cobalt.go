// Package resolver turns a social media link into downloadable media URLs
// using a Cobalt instance.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 30 * time.Second
	videoQuality   = "720"
	audioFormat    = "mp3"

	// shared by all users of one bot instance
	requestsPerSecond = 5
	requestBurst      = 10

	maxErrorBody = 4 << 10
)

type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeAudio Mode = "audio"
)

type ErrorKind string

const (
	KindUnsupported ErrorKind = "unsupported"
	KindUpstream    ErrorKind = "upstream"
	KindUnavailable ErrorKind = "unavailable"
	KindNoMedia     ErrorKind = "no_media"
)

// ResolveError is returned for every failed resolution. Message is the
// upstream text when the service gave one.
type ResolveError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ResolveError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("resolve %s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("resolve %s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("resolve %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("resolve %s", e.Kind)
	}
}

func (e *ResolveError) Unwrap() error { return e.Err }

// ErrorKindOf extracts the kind, KindUpstream for foreign errors
func ErrorKindOf(err error) ErrorKind {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUpstream
}

type Asset struct {
	URL      string
	Filename string
	Kind     database.MediaKind // video, audio or image_set for one photo of a set
}

// Result is a resolved link. An image set carries one asset per photo.
type Result struct {
	Platform database.Platform
	Kind     database.MediaKind
	Assets   []Asset
}

type cobaltRequest struct {
	URL          string `json:"url"`
	DownloadMode Mode   `json:"downloadMode"`
	VideoQuality string `json:"videoQuality,omitempty"`
	AudioFormat  string `json:"audioFormat,omitempty"`
	Filename     string `json:"filenameStyle"`
}

type cobaltPickerItem struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Thumb string `json:"thumb,omitempty"`
}

type cobaltResponse struct {
	Status   string             `json:"status"`
	URL      string             `json:"url"`
	Filename string             `json:"filename"`
	Text     string             `json:"text"`
	Picker   []cobaltPickerItem `json:"picker"`
	Audio    string             `json:"audio"`
	Error    *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (r *cobaltResponse) errorMessage() string {
	if r.Text != "" {
		return r.Text
	}
	if r.Error != nil && r.Error.Code != "" {
		return r.Error.Code
	}
	return "unknown error"
}

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Collector
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/") + "/",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func NewClientFromConfig(cfg *config.Config, m *metrics.Collector) *Client {
	return NewClient(cfg.CobaltAPIURL, cfg.CobaltAPIKey, WithMetrics(m))
}

// Resolve asks Cobalt for the media behind rawURL. Failures are always a
// *ResolveError.
func (c *Client) Resolve(ctx context.Context, rawURL string, mode Mode) (*Result, error) {
	platform := DetectPlatform(rawURL)
	if platform == database.PlatformUnknown {
		return nil, &ResolveError{Kind: KindUnsupported}
	}

	start := time.Now()
	res, err := c.resolve(ctx, rawURL, mode, platform)
	outcome := "ok"
	if err != nil {
		outcome = string(ErrorKindOf(err))
		logger.Warn("Resolve failed", map[string]interface{}{
			"platform": platform,
			"mode":     mode,
			"error":    err.Error(),
		})
	}
	c.metrics.ObserveResolve(string(platform), outcome, time.Since(start))
	return res, err
}

func (c *Client) resolve(ctx context.Context, rawURL string, mode Mode, platform database.Platform) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ResolveError{Kind: KindUnavailable, Err: err}
	}

	payload := cobaltRequest{
		URL:          rawURL,
		DownloadMode: mode,
		Filename:     "basic",
	}
	if mode == ModeAudio {
		payload.AudioFormat = audioFormat
	} else {
		payload.VideoQuality = videoQuality
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ResolveError{Kind: KindUpstream, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ResolveError{Kind: KindUpstream, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ResolveError{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ResolveError{Kind: KindUnavailable, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var data cobaltResponse
	decodeErr := json.Unmarshal(raw, &data)

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if decodeErr == nil && data.Status == "error" {
			msg = data.errorMessage()
		} else if len(raw) > 0 {
			logger.Debug("Cobalt error body", map[string]interface{}{
				"status": resp.StatusCode,
				"body":   string(raw[:min(len(raw), maxErrorBody)]),
			})
		}
		return nil, &ResolveError{Kind: KindUpstream, Message: msg}
	}
	if decodeErr != nil {
		return nil, &ResolveError{Kind: KindUpstream, Err: fmt.Errorf("failed to unmarshal response: %w", decodeErr)}
	}

	return toResult(&data, mode, platform)
}

func toResult(data *cobaltResponse, mode Mode, platform database.Platform) (*Result, error) {
	single := database.MediaVideo
	if mode == ModeAudio {
		single = database.MediaAudio
	}

	switch data.Status {
	case "error":
		return nil, &ResolveError{Kind: KindUpstream, Message: data.errorMessage()}

	case "redirect", "tunnel", "stream":
		if data.URL == "" {
			return nil, &ResolveError{Kind: KindNoMedia}
		}
		return &Result{
			Platform: platform,
			Kind:     single,
			Assets:   []Asset{{URL: data.URL, Filename: data.Filename, Kind: single}},
		}, nil

	case "picker":
		if mode == ModeAudio {
			if data.Audio == "" {
				return nil, &ResolveError{Kind: KindNoMedia}
			}
			return &Result{
				Platform: platform,
				Kind:     database.MediaAudio,
				Assets:   []Asset{{URL: data.Audio, Kind: database.MediaAudio}},
			}, nil
		}

		res := &Result{Platform: platform, Kind: database.MediaImageSet}
		for _, item := range data.Picker {
			if item.URL == "" {
				continue
			}
			kind := database.MediaImageSet
			if item.Type == "video" || item.Type == "gif" {
				kind = database.MediaVideo
			}
			res.Assets = append(res.Assets, Asset{URL: item.URL, Kind: kind})
		}
		if len(res.Assets) == 0 {
			return nil, &ResolveError{Kind: KindNoMedia}
		}
		return res, nil

	default:
		return nil, &ResolveError{Kind: KindUpstream, Message: fmt.Sprintf("unexpected status %q", data.Status)}
	}
}
