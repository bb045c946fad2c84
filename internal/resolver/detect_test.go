package resolver

import (
	"testing"

	"github.com/clipbot/clipbot/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single link",
			text: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			want: []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		},
		{
			name: "link inside arabic text with trailing punctuation",
			text: "نزل هذا الفيديو https://youtu.be/abc123, شكرا",
			want: []string{"https://youtu.be/abc123"},
		},
		{
			name: "bare tiktok short link",
			text: "audio please vm.tiktok.com/ZMabc123/",
			want: []string{"https://vm.tiktok.com/ZMabc123/"},
		},
		{
			name: "bare instagram link",
			text: "www.instagram.com/p/Cxyz/",
			want: []string{"https://www.instagram.com/p/Cxyz/"},
		},
		{
			name: "duplicates collapse",
			text: "https://vt.tiktok.com/Z1 https://vt.tiktok.com/Z1",
			want: []string{"https://vt.tiktok.com/Z1"},
		},
		{
			name: "order preserved",
			text: "https://example.com/a then https://www.tiktok.com/@u/video/1",
			want: []string{"https://example.com/a", "https://www.tiktok.com/@u/video/1"},
		},
		{
			name: "no links",
			text: "hello, how does this work?",
			want: nil,
		},
		{
			name: "scheme without host",
			text: "https://localhost",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURLs(tt.text))
		})
	}
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want database.Platform
	}{
		{"https://www.youtube.com/watch?v=1", database.PlatformYouTube},
		{"https://m.youtube.com/shorts/1", database.PlatformYouTube},
		{"https://youtu.be/1", database.PlatformYouTube},
		{"https://www.tiktok.com/@u/video/1", database.PlatformTikTok},
		{"https://vm.tiktok.com/ZM1/", database.PlatformTikTok},
		{"https://vt.tiktok.com/ZS1/", database.PlatformTikTok},
		{"https://www.instagram.com/reel/C1/", database.PlatformInstagram},
		{"https://instagr.am/p/C1/", database.PlatformInstagram},
		{"HTTPS://WWW.YOUTUBE.COM/watch?v=1", database.PlatformYouTube},
		{"https://example.com/youtube.com", database.PlatformUnknown},
		{"https://notyoutube.com/watch", database.PlatformUnknown},
		{"not a url", database.PlatformUnknown},
		{"", database.PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPlatform(tt.url))
		})
	}
}

func TestWantsAudio(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"https://youtu.be/x audio", true},
		{"MP3 https://youtu.be/x", true},
		{"بدي صوت فقط", true},
		{"حمل الاغنية", true},
		{"حمل الفيديو", false},
		{"اغنية https://youtu.be/x", true},
		{"play this song", true},
		{"موسيقى", true},
		{"https://youtu.be/x", false},
		{"https://youtu.be/mp3music", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, WantsAudio(tt.text))
		})
	}
}
