// Package i18n renders user facing text in Arabic or English.
package i18n

import (
	"fmt"
	"strings"
)

const (
	Arabic   = "ar"
	English  = "en"
	Fallback = Arabic
)

// Supported reports whether lang has a catalogue
func Supported(lang string) bool {
	_, ok := catalogue[lang]
	return ok
}

// DetectLanguage maps a Telegram language_code onto a supported language.
// Anything starting with "ar" is Arabic, everything else English.
func DetectLanguage(code string) string {
	if strings.HasPrefix(strings.ToLower(code), Arabic) {
		return Arabic
	}
	return English
}

// T looks key up in lang, then in the fallback language, then returns the
// key itself. args are name/value pairs filling {name} placeholders.
func T(lang, key string, args ...interface{}) string {
	msgs, ok := catalogue[lang]
	if !ok {
		msgs = catalogue[Fallback]
	}

	text, ok := msgs[key]
	if !ok {
		text, ok = catalogue[Fallback][key]
		if !ok {
			text = key
		}
	}

	if len(args) == 0 {
		return text
	}
	return fill(text, args)
}

func fill(text string, args []interface{}) string {
	pairs := make([]string, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		name := fmt.Sprint(args[i])
		pairs = append(pairs, "{"+name+"}", fmt.Sprint(args[i+1]))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// TierName is the localised display name of a tier
func TierName(lang, tier string) string {
	return T(lang, "tier_"+tier)
}
