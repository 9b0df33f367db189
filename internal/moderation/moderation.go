// Package moderation screens post text with keyword and pattern rules.
package moderation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sujalbistaa/feedsync/internal/models"
)

var defaultToxic = []string{
	"fuck", "shit", "damn", "bitch", "asshole", "bastard",
	"idiot", "stupid", "dumb", "moron",
}

var defaultHate = []string{
	"kill yourself", "go die",
}

var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`buy now|click here|limited offer|act fast`),
	regexp.MustCompile(`(www\.|http|\.com)(.*(www\.|http|\.com)){2,}`),
	regexp.MustCompile(`(\$\$\$|!!!)(.*(\$\$\$|!!!)){2,}`),
}

var mixedDigits = regexp.MustCompile(`[a-zA-Z]+\d+[a-zA-Z]*\d+`)

var keyboardRuns = []string{"qwerty", "asdfgh", "zxcvbn", "qaz", "wsx", "edc", "asd", "jkl"}

const ruleConfidence = 0.8

// Rules is a keyword and pattern moderator. The zero value is not usable;
// call New.
type Rules struct {
	toxic []string
	hate  []string
}

// New returns rules with the built-in keyword lists plus any extra toxic
// keywords.
func New(extraToxic ...string) *Rules {
	r := &Rules{
		toxic: append([]string{}, defaultToxic...),
		hate:  append([]string{}, defaultHate...),
	}
	for _, k := range extraToxic {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			r.toxic = append(r.toxic, k)
		}
	}
	return r
}

// Check returns the verdict for text.
func (r *Rules) Check(text string) models.Verdict {
	if strings.TrimSpace(text) == "" {
		return models.Verdict{Details: "empty content"}
	}
	lower := strings.ToLower(text)

	v := models.Verdict{
		IsToxic:      containsAny(lower, r.toxic),
		IsHateSpeech: containsAny(lower, r.hate),
		IsSpam:       IsSpam(text),
	}

	var details []string
	if v.IsToxic {
		details = append(details, "toxic language detected")
	}
	if v.IsHateSpeech {
		details = append(details, "hate speech detected")
	}
	if v.IsSpam {
		details = append(details, "spam patterns detected")
	}
	if len(details) == 0 {
		v.Details = "content appears safe"
		return v
	}
	v.ConfidenceScore = ruleConfidence
	v.Details = strings.Join(details, ", ")
	return v
}

// Blocked reports whether a verdict keeps a post out of feeds.
func Blocked(v models.Verdict) bool {
	return v.Flagged()
}

// IsSpam matches advertising phrases, repeated links, and short
// keyboard-mash gibberish.
func IsSpam(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range spamPatterns {
		if p.MatchString(lower) {
			return true
		}
	}

	letters := make([]rune, 0, len(text))
	for _, c := range lower {
		if c < unicode.MaxASCII && unicode.IsLetter(c) {
			letters = append(letters, c)
		}
	}
	if len(letters) < 3 {
		return false
	}

	vowels := 0
	for _, c := range letters {
		if strings.ContainsRune("aeiouy", c) {
			vowels++
		}
	}
	consonantRatio := float64(len(letters)-vowels) / float64(len(letters))
	limit := 0.75
	if len(letters) < 8 {
		limit = 0.70
	}
	if consonantRatio > limit {
		return true
	}

	if mixedDigits.MatchString(text) && countDigits(text) > 3 {
		return true
	}

	if len(lower) < 15 {
		for _, seq := range keyboardRuns {
			if strings.Contains(lower, seq) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func countDigits(s string) int {
	n := 0
	for _, c := range s {
		if unicode.IsDigit(c) {
			n++
		}
	}
	return n
}
