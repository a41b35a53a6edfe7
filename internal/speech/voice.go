package speech

import (
	"strings"
)

type Voice struct {
	Name string
	Lang string
}

// DefaultPreferences is tried in order against the synthesizer's voices.
var DefaultPreferences = []string{
	"Google US English",
	"Samantha",
	"Microsoft Aria",
	"English (America)",
	"en-us",
	"en",
}

// SelectVoice returns the first voice matching the earliest preference, or
// nil. A preference matches a voice whose name equals it or starts with it,
// or whose language equals it, all case-insensitively.
func SelectVoice(voices []Voice, prefs []string) *Voice {
	for _, pref := range prefs {
		p := strings.ToLower(strings.TrimSpace(pref))
		if p == "" {
			continue
		}

		for _, v := range voices {
			name := strings.ToLower(v.Name)
			if name == p || strings.HasPrefix(name, p) || strings.EqualFold(v.Lang, p) {
				match := v
				return &match
			}
		}
	}
	return nil
}
