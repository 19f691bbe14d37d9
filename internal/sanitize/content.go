// Package sanitize cleans and validates raw event content, user-authored
// prompt text, and outbound URLs before anything downstream sees them.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	// MaxContentLength is the hard cap on runtime event content.
	MaxContentLength = 50_000
	// MaxPromptLength is the stricter cap for user-authored free text fed
	// toward the one-time rule-generation call.
	MaxPromptLength = 5_000
)

// Result is the outcome of sanitizing one piece of text. Sanitization
// never fails with an error: a blocked input is reported through the
// Blocked flag and the caller must check it.
type Result struct {
	Valid     bool     `json:"valid"`
	Sanitized string   `json:"sanitized"`
	Warnings  []string `json:"warnings,omitempty"`
	Blocked   bool     `json:"blocked"`
	Reason    string   `json:"reason,omitempty"`
}

// Pre-compiled injection deny-list, compiled once at startup, never per
// request. Any hit blocks the whole input; there is no partial redaction.
var injectionPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`), "override: ignore previous instructions"},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions|rules|guidelines)`), "override: disregard instructions"},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions|context)`), "override: forget instructions"},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+`), "role override: you are now"},
	{regexp.MustCompile(`(?i)from\s+now\s+on\s+you\s+(are|will|must|should)`), "role override: from now on"},
	{regexp.MustCompile(`(?i)your\s+new\s+(role|identity|persona|instructions)\s+(is|are)`), "role override: new role"},
	{regexp.MustCompile(`(?i)\[SYSTEM\]`), "chat-control token: [SYSTEM] tag"},
	{regexp.MustCompile(`(?i)<\|im_start\|>`), "chat-control token: ChatML tag"},
	{regexp.MustCompile(`(?i)###\s*(SYSTEM|INSTRUCTION|NEW INSTRUCTION)`), "chat-control token: markdown system header"},
	{regexp.MustCompile(`(?i)override\s+(system|safety|security)\s+(prompt|instructions|rules|policy)`), "explicit override attempt"},
	{regexp.MustCompile(`(?i)bypass\s+(the\s+)?(safety|security|content)\s+(filter|check|policy|rules)`), "explicit bypass attempt"},
	{regexp.MustCompile(`(?i)do\s+not\s+follow\s+(your|the|any)\s+(rules|guidelines|instructions|safety)`), "instruction negation"},
	{regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system|initial|original|hidden)\s+(prompt|instructions|message)`), "system prompt extraction"},
}

// Content sanitizes runtime event content: truncates past the hard cap,
// fails closed on any injection-pattern hit, strips control characters
// (except newline and tab), and collapses excess blank lines.
func Content(text string) Result {
	return sanitize(text, MaxContentLength)
}

// CustomPrompt sanitizes setup-time user text under the stricter cap.
// Never used for runtime events.
func CustomPrompt(text string) Result {
	return sanitize(text, MaxPromptLength)
}

func sanitize(text string, maxLen int) Result {
	var warnings []string

	runes := []rune(text)
	if len(runes) > maxLen {
		text = string(runes[:maxLen])
		warnings = append(warnings, "content truncated to maximum length")
	}

	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			// Fail closed: the sanitized content is discarded entirely,
			// not redacted around the match.
			return Result{
				Valid:    false,
				Warnings: warnings,
				Blocked:  true,
				Reason:   p.detail,
			}
		}
	}

	cleaned := stripControl(text)
	cleaned = collapseBlankLines(cleaned)

	return Result{
		Valid:     true,
		Sanitized: cleaned,
		Warnings:  warnings,
	}
}

// stripControl removes control characters except newline and tab.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

var (
	trailingWS = regexp.MustCompile(`[ \t]+\n`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// collapseBlankLines trims trailing whitespace per line and squeezes runs
// of blank lines down to one.
func collapseBlankLines(s string) string {
	s = trailingWS.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
