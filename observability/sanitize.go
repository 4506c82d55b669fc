package observability

import (
	"regexp"
	"strings"
)

const credentialRedacted = "[CREDENTIAL_REDACTED]"

// credentialPatterns detects credential formats that must never leave the
// process in span attributes, events or captured prompt text.
var credentialPatterns = []*regexp.Regexp{
	// LLM vendor keys: sk-..., sk-proj-..., sk-ant-api03-...
	regexp.MustCompile(`(?i)\bsk-[a-z0-9_-]{16,}`),
	// API key prefixes: sk_, pk_, rk_, xox*_, ghp/gho/ghu/ghs/ghr_, pat_
	regexp.MustCompile(`(?i)\b(?:sk|pk|rk|xox[baprs]|gh[pousr]|pat)_[a-z0-9_-]{8,}\b`),
	// AWS access key ids (Bedrock)
	regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	// Google API keys (Gemini)
	regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}`),
	// JWT-like tokens (three base64url segments separated by dots)
	regexp.MustCompile(`(?i)eyj[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}`),
	// Bearer token in header-like strings
	regexp.MustCompile(`(?i)\bBearer\s+[a-z0-9_.\-/+=]{8,}\b`),
	// key=value secrets: password=..., secret=..., token=..., api_key=...
	regexp.MustCompile(`(?i)\b(?:password|secret|token|api[_-]?key)\s*[=:]\s*\S{4,}`),
}

// ContainsCredential reports whether s matches any known credential pattern.
// Strings shorter than 8 bytes cannot match.
func ContainsCredential(s string) bool {
	if len(s) < 8 {
		return false
	}
	for _, p := range credentialPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ScrubCredentials replaces every detected credential in s with
// [CREDENTIAL_REDACTED]. If nothing matches, s is returned unchanged.
func ScrubCredentials(s string) string {
	if len(s) < 8 {
		return s
	}
	result := s
	changed := false
	for _, p := range credentialPatterns {
		if p.MatchString(result) {
			result = p.ReplaceAllString(result, credentialRedacted)
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.TrimSpace(result)
}
