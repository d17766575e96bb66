package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrValidationRejected means a generated summary failed the safety gate
// and must not be persisted.
var ErrValidationRejected = errors.New("summary rejected by validator")

var (
	urlPattern   = regexp.MustCompile(`https?://\S+`)
	fencePattern = regexp.MustCompile("(?s)```.*?```|```.*$")
)

// ValidateSummary gates LLM-generated summary text before it reaches the
// store. Oversized text and configured injection phrases reject outright;
// URLs and code fences are stripped with a warning. Returns the cleaned
// text and any warnings.
func (e *Engine) ValidateSummary(text string) (string, []string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, fmt.Errorf("%w: empty summary", ErrValidationRejected)
	}
	if n := utf8.RuneCountInString(text); n > e.Cfg.Summaries.MaxChars {
		return "", nil, fmt.Errorf("%w: %d chars exceeds limit %d",
			ErrValidationRejected, n, e.Cfg.Summaries.MaxChars)
	}

	lower := strings.ToLower(text)
	for _, phrase := range e.Cfg.Summaries.InjectionPatterns {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return "", nil, fmt.Errorf("%w: injection phrase %q", ErrValidationRejected, phrase)
		}
	}

	var warnings []string
	if urlPattern.MatchString(text) {
		text = urlPattern.ReplaceAllString(text, "")
		warnings = append(warnings, "stripped URLs")
	}
	if fencePattern.MatchString(text) {
		text = fencePattern.ReplaceAllString(text, "")
		warnings = append(warnings, "stripped code fences")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, fmt.Errorf("%w: nothing left after stripping", ErrValidationRejected)
	}
	return text, warnings, nil
}
