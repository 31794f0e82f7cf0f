package logging

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RedactedPlaceholder replaces secrets in log output.
const RedactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`),     // OpenAI keys
	regexp.MustCompile(`AIza[A-Za-z0-9_-]{35}`),               // Google / Gemini keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{8,}`), // Authorization headers
	regexp.MustCompile(`\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}`),  // bcrypt hashes
	regexp.MustCompile(`(?i)(?:api[_-]?key|token|secret|password)\s*[:=]\s*[^\s,;&"']{6,}`),
	regexp.MustCompile(`(?i)([?&](?:key|api_key|token)=)[^&\s]+`),
}

// Field names containing any of these (case-insensitive) are always redacted.
var sensitiveFieldNames = []string{
	"API_KEY",
	"APIKEY",
	"TOKEN",
	"SECRET",
	"PASSWORD",
	"AUTHORIZATION",
}

// RedactSensitiveData replaces API keys, bearer tokens and key=value secrets in s.
func RedactSensitiveData(s string) string {
	if s == "" {
		return s
	}
	for _, p := range sensitivePatterns {
		if p.NumSubexp() > 0 {
			s = p.ReplaceAllString(s, "${1}"+RedactedPlaceholder)
			continue
		}
		s = p.ReplaceAllString(s, RedactedPlaceholder)
	}
	return s
}

// ContainsSensitiveData reports whether s matches any secret pattern.
func ContainsSensitiveData(s string) bool {
	for _, p := range sensitivePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// IsSensitiveField reports whether a field or env var name holds a secret,
// for example GEMINI_API_KEY or api_token.
func IsSensitiveField(name string) bool {
	upper := strings.ToUpper(name)
	for _, n := range sensitiveFieldNames {
		if strings.Contains(upper, n) {
			return true
		}
	}
	return false
}

// redactField scrubs a single field by name and, for strings and errors, by value.
func redactField(f zapcore.Field) zapcore.Field {
	if IsSensitiveField(f.Key) {
		return zap.String(f.Key, RedactedPlaceholder)
	}
	switch f.Type {
	case zapcore.StringType:
		if r := RedactSensitiveData(f.String); r != f.String {
			return zap.String(f.Key, r)
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			msg := err.Error()
			if r := RedactSensitiveData(msg); r != msg {
				return zap.String(f.Key, r)
			}
		}
	}
	return f
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

// redactCore applies redaction to every entry, including those written
// through the raw *zap.Logger handed to lower-level packages.
type redactCore struct {
	zapcore.Core
}

// NewRedactingCore wraps core so messages and fields are scrubbed before encoding.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
	return redactCore{Core: core}
}

func (c redactCore) With(fields []zapcore.Field) zapcore.Core {
	return redactCore{Core: c.Core.With(redactFields(fields))}
}

func (c redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = RedactSensitiveData(ent.Message)
	return c.Core.Write(ent, redactFields(fields))
}
