package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	logger.InitDiscard()
}

func cobaltServer(t *testing.T, status int, body string, inspect func(*http.Request, map[string]interface{})) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if inspect != nil {
			inspect(r, payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveVideoRedirect(t *testing.T) {
	srv := cobaltServer(t, http.StatusOK, `{"status":"redirect","url":"https://cdn.example/v.mp4","filename":"v.mp4"}`,
		func(r *http.Request, payload map[string]interface{}) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Api-Key secret", r.Header.Get("Authorization"))
			assert.Equal(t, "https://youtu.be/abc", payload["url"])
			assert.Equal(t, "auto", payload["downloadMode"])
			assert.Equal(t, "720", payload["videoQuality"])
			assert.NotContains(t, payload, "audioFormat")
		})

	c := NewClient(srv.URL, "secret")
	res, err := c.Resolve(context.Background(), "https://youtu.be/abc", ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, database.PlatformYouTube, res.Platform)
	assert.Equal(t, database.MediaVideo, res.Kind)
	require.Len(t, res.Assets, 1)
	assert.Equal(t, "https://cdn.example/v.mp4", res.Assets[0].URL)
	assert.Equal(t, "v.mp4", res.Assets[0].Filename)
}

func TestResolveAudio(t *testing.T) {
	srv := cobaltServer(t, http.StatusOK, `{"status":"tunnel","url":"https://cdn.example/a.mp3","filename":"a.mp3"}`,
		func(r *http.Request, payload map[string]interface{}) {
			assert.Empty(t, r.Header.Get("Authorization"))
			assert.Equal(t, "audio", payload["downloadMode"])
			assert.Equal(t, "mp3", payload["audioFormat"])
		})

	res, err := NewClient(srv.URL, "").Resolve(context.Background(), "https://www.tiktok.com/@u/video/1", ModeAudio)
	require.NoError(t, err)
	assert.Equal(t, database.MediaAudio, res.Kind)
	assert.Equal(t, database.MediaAudio, res.Assets[0].Kind)
}

func TestResolvePickerImageSet(t *testing.T) {
	srv := cobaltServer(t, http.StatusOK, `{"status":"picker","audio":"https://cdn.example/bg.mp3","picker":[
		{"type":"photo","url":"https://cdn.example/1.jpg"},
		{"type":"photo","url":""},
		{"type":"photo","url":"https://cdn.example/2.jpg"},
		{"type":"video","url":"https://cdn.example/3.mp4"}]}`, nil)
	c := NewClient(srv.URL, "")

	res, err := c.Resolve(context.Background(), "https://www.instagram.com/p/C1/", ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, database.MediaImageSet, res.Kind)
	require.Len(t, res.Assets, 3)
	assert.Equal(t, database.MediaImageSet, res.Assets[0].Kind)
	assert.Equal(t, database.MediaVideo, res.Assets[2].Kind)

	res, err = c.Resolve(context.Background(), "https://vm.tiktok.com/ZM1/", ModeAudio)
	require.NoError(t, err)
	assert.Equal(t, database.MediaAudio, res.Kind)
	assert.Equal(t, "https://cdn.example/bg.mp3", res.Assets[0].URL)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{"upstream error text", http.StatusOK, `{"status":"error","text":"video is private"}`, KindUpstream, "video is private"},
		{"upstream error code", http.StatusBadRequest, `{"status":"error","error":{"code":"error.api.content.video.unavailable"}}`, KindUpstream, "error.api.content.video.unavailable"},
		{"bad gateway", http.StatusBadGateway, `<html>bad gateway</html>`, KindUpstream, "status 502"},
		{"garbage body", http.StatusOK, `not json`, KindUpstream, ""},
		{"empty redirect", http.StatusOK, `{"status":"redirect"}`, KindNoMedia, ""},
		{"empty picker", http.StatusOK, `{"status":"picker","picker":[]}`, KindNoMedia, ""},
		{"unknown status", http.StatusOK, `{"status":"rate-limit"}`, KindUpstream, `unexpected status "rate-limit"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := cobaltServer(t, tt.status, tt.body, nil)
			_, err := NewClient(srv.URL, "").Resolve(context.Background(), "https://youtu.be/x", ModeAuto)
			require.Error(t, err)

			var re *ResolveError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.kind, re.Kind)
			assert.Equal(t, tt.message, re.Message)
		})
	}
}

func TestResolveUnsupportedMakesNoCall(t *testing.T) {
	called := false
	srv := cobaltServer(t, http.StatusOK, `{}`, func(*http.Request, map[string]interface{}) { called = true })

	_, err := NewClient(srv.URL, "").Resolve(context.Background(), "https://vimeo.com/1", ModeAuto)
	assert.Equal(t, KindUnsupported, ErrorKindOf(err))
	assert.False(t, called)
}

func TestResolveTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithHTTPClient(&http.Client{Timeout: 30 * time.Millisecond}))
	_, err := c.Resolve(context.Background(), "https://youtu.be/x", ModeAuto)
	assert.Equal(t, KindUnavailable, ErrorKindOf(err))
}

func TestResolveConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "").Resolve(context.Background(), "https://youtu.be/x", ModeAuto)
	assert.Equal(t, KindUnavailable, ErrorKindOf(err))
}

func TestResolveRateLimitRespectsContext(t *testing.T) {
	srv := cobaltServer(t, http.StatusOK, `{"status":"redirect","url":"https://cdn.example/v.mp4"}`, nil)
	c := NewClient(srv.URL, "", WithRateLimit(rate.Every(time.Hour), 1))

	_, err := c.Resolve(context.Background(), "https://youtu.be/x", ModeAuto)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Resolve(ctx, "https://youtu.be/x", ModeAuto)
	assert.Equal(t, KindUnavailable, ErrorKindOf(err))
}

func TestResolveRecordsMetrics(t *testing.T) {
	srv := cobaltServer(t, http.StatusOK, `{"status":"error","text":"nope"}`, nil)
	reg := prometheus.NewRegistry()
	m := metrics.NewCollectorWithRegistry(reg)

	_, _ = NewClient(srv.URL, "", WithMetrics(m)).Resolve(context.Background(), "https://youtu.be/x", ModeAuto)

	n, err := testutil.GatherAndCount(reg, "clipbot_resolve_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResolveErrorString(t *testing.T) {
	assert.Equal(t, "resolve unsupported", (&ResolveError{Kind: KindUnsupported}).Error())
	assert.Equal(t, "resolve upstream: boom", (&ResolveError{Kind: KindUpstream, Message: "boom"}).Error())
	assert.Equal(t, KindUpstream, ErrorKindOf(assert.AnError))
}
