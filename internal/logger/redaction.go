package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Redactor masks credentials that can leak into log lines, mostly through
// store and cache connection strings.
type Redactor struct {
	rules []redactionRule
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []redactionRule{
			// user:password@ in connection URIs, keeping scheme and host
			{regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^:@/\s"]+:[^@/\s"]+@`), "${1}" + redacted + "@"},

			// Bearer tokens
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/=-]+`), "Bearer " + redacted},

			// key=value and "key": "value" secrets
			{regexp.MustCompile(`(?i)(password|passwd|pwd|secret|api_key|apikey)(["']?\s*[:=]\s*["']?)[^\s"'&,}]+`), "${1}${2}" + redacted},

			// AWS access keys
			{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), redacted},
		},
	}
}

// AddPattern adds a custom redaction pattern whose matches are replaced whole
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{pattern: re, replacement: redacted})
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, rule := range r.rules {
		result = rule.pattern.ReplaceAllString(result, rule.replacement)
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
