package llm

import (
	"strings"
	"unicode"

	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/resolver"
)

type Intent string

const (
	IntentDownload Intent = "download"
	IntentHelp     Intent = "help"
	IntentGreeting Intent = "greeting"
	IntentQuestion Intent = "question"
	IntentUnknown  Intent = "unknown"
)

var (
	helpWords     = []string{"مساعدة", "help", "كيف", "how", "ساعدني"}
	greetingWords = []string{"مرحبا", "hello", "hi", "السلام", "أهلا", "اهلا"}
	questionWords = []string{"ماذا", "what", "لماذا", "why"}
)

// Analysis is a rule based reading of a free text message
type Analysis struct {
	Intent     Intent
	URLs       []string
	Platform   database.Platform // of the first URL
	WantsAudio bool
	Language   string
	Confidence float64
}

// AnalyzeMessage classifies text without any network call
func AnalyzeMessage(text string) Analysis {
	a := Analysis{
		Intent:     IntentUnknown,
		URLs:       resolver.ExtractURLs(text),
		Platform:   database.PlatformUnknown,
		WantsAudio: resolver.WantsAudio(text),
		Language:   GuessLanguage(text),
		Confidence: 0.5,
	}
	if len(a.URLs) > 0 {
		a.Platform = resolver.DetectPlatform(a.URLs[0])
	}

	lower := strings.ToLower(text)
	words := tokenize(lower)
	switch {
	case len(a.URLs) > 0:
		a.Intent, a.Confidence = IntentDownload, 0.9
	case containsAny(lower, words, helpWords):
		a.Intent, a.Confidence = IntentHelp, 0.8
	case containsAny(lower, words, greetingWords):
		a.Intent, a.Confidence = IntentGreeting, 0.9
	case strings.ContainsAny(text, "?؟") || containsAny(lower, words, questionWords):
		a.Intent, a.Confidence = IntentQuestion, 0.7
	}
	return a
}

// GuessLanguage is Arabic as soon as the text has an Arabic letter
func GuessLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Arabic, r) && unicode.IsLetter(r) {
			return i18n.Arabic
		}
	}
	return i18n.English
}

func tokenize(lower string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		words[w] = true
	}
	return words
}

// containsAny matches Latin keywords as whole words so "hi" does not fire
// on "this", and Arabic ones as substrings to allow attached prefixes.
func containsAny(lower string, words map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if isLatin(kw) {
			if words[kw] {
				return true
			}
			continue
		}
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// FriendlyErrorKey maps a resolver failure message onto an i18n key.
// error_upstream expects the raw message as {error}.
func FriendlyErrorKey(message string) string {
	m := strings.ToLower(message)
	switch {
	case containsAnySub(m, "network", "connection", "timeout", "timed out"):
		return "error_network"
	case containsAnySub(m, "not found", "404", "not_found", "deleted"):
		return "error_not_found"
	case containsAnySub(m, "private", "unavailable"):
		return "error_private"
	case containsAnySub(m, "age", "restricted"):
		return "error_age_restricted"
	default:
		return "error_upstream"
	}
}

func containsAnySub(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Suggestion returns the upsell key and tier for a usage level, or "" when
// usage does not warrant one.
func Suggestion(downloadsToday int) (string, database.Tier) {
	switch {
	case downloadsToday >= 20:
		return "suggest_power", database.TierProfessional
	case downloadsToday >= 5:
		return "suggest_basic", database.TierBasic
	default:
		return "", ""
	}
}
