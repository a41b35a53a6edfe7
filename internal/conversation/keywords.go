package conversation

import (
	"strings"
	"unicode"
)

const maxConfirmWords = 4

var (
	resetWords = map[string]bool{
		"restart": true,
	}

	rejectionPhrases = map[string]bool{
		"no":         true,
		"nope":       true,
		"cancel":     true,
		"stop":       true,
		"wrong":      true,
		"no thanks":  true,
		"never mind": true,
		"nevermind":  true,
	}

	affirmativeWords = map[string]bool{
		"yes":        true,
		"yeah":       true,
		"yep":        true,
		"yup":        true,
		"sure":       true,
		"ok":         true,
		"okay":       true,
		"confirm":    true,
		"correct":    true,
		"right":      true,
		"absolutely": true,
		"proceed":    true,
		"execute":    true,
	}

	greetingPhrases = []string{
		"hello",
		"hi",
		"hey",
		"howdy",
		"greetings",
		"good morning",
		"good afternoon",
		"good evening",
	}
)

// normalize lower-cases text, drops punctuation and collapses whitespace.
func normalize(text string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)
	return strings.Join(strings.Fields(stripped), " ")
}

func isReset(norm string) bool {
	return resetWords[norm]
}

func isRejection(norm string) bool {
	return rejectionPhrases[norm]
}

func isAffirmative(norm string) bool {
	for _, w := range strings.Fields(norm) {
		if affirmativeWords[w] {
			return true
		}
	}
	return false
}

// isQuickConfirm is a short affirmative reply that needs no remote call.
func isQuickConfirm(norm string) bool {
	return len(strings.Fields(norm)) <= maxConfirmWords && isAffirmative(norm)
}

func isGreeting(norm string) bool {
	padded := " " + norm + " "
	for _, p := range greetingPhrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
