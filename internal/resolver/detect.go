package resolver

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/clipbot/clipbot/internal/database"
)

var (
	schemeURL = regexp.MustCompile(`(?i)https?://[^\s<>"'\x{00AB}\x{00BB}]+`)

	// links pasted without a scheme, e.g. "vm.tiktok.com/ZMabc"
	bareURL = regexp.MustCompile(`(?i)\b(?:(?:www|m|vm|vt)\.)?(?:tiktok\.com|instagram\.com|instagr\.am|youtube\.com|youtu\.be)/[^\s<>"'\x{00AB}\x{00BB}]+`)
)

var platformHosts = []struct {
	domain   string
	platform database.Platform
}{
	{"youtube.com", database.PlatformYouTube},
	{"youtu.be", database.PlatformYouTube},
	{"tiktok.com", database.PlatformTikTok},
	{"instagram.com", database.PlatformInstagram},
	{"instagr.am", database.PlatformInstagram},
}

var audioKeywords = []string{
	"audio", "mp3", "music", "song", "sound",
	"صوت", "موسيقى", "اغنية", "أغنية",
}

// ExtractURLs returns the links in text in order of appearance, without
// duplicates. Known platform links without a scheme get https://.
func ExtractURLs(text string) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimRight(u, ".,;:!?)]}'\"،")
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	for _, m := range schemeURL.FindAllString(text, -1) {
		if parsed, err := url.Parse(strings.TrimRight(m, ".,;:!?)]}'\"،")); err == nil && strings.Contains(parsed.Host, ".") {
			add(m)
		}
	}

	rest := schemeURL.ReplaceAllString(text, " ")
	for _, m := range bareURL.FindAllString(rest, -1) {
		add("https://" + m)
	}
	return urls
}

// DetectPlatform classifies a link by host. Subdomains such as m. or vm.
// belong to their parent platform.
func DetectPlatform(rawURL string) database.Platform {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return database.PlatformUnknown
	}
	host := strings.ToLower(parsed.Hostname())

	for _, h := range platformHosts {
		if host == h.domain || strings.HasSuffix(host, "."+h.domain) {
			return h.platform
		}
	}
	return database.PlatformUnknown
}

// WantsAudio reports whether the message asks for the soundtrack only.
// Links are ignored so an id like ".../mp3xyz" does not count.
func WantsAudio(text string) bool {
	lower := strings.ToLower(bareURL.ReplaceAllString(schemeURL.ReplaceAllString(text, " "), " "))
	for _, kw := range audioKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
