// Package redact masks cipher material before it reaches logs.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	neverPersistKey = "never_persist"
	redactedSecret  = "[REDACTED_SECRET]"
	redactedKey     = "[REDACTED_KEY]"
)

// sensitiveFields are metadata keys whose values are always masked.
var sensitiveFields = map[string]struct{}{
	"key":        {},
	"plaintext":  {},
	"ciphertext": {},
	"text":       {},
}

var (
	// Nine or more delimited decimal values: a layout of order 3 or more.
	decimalKeyRe = regexp.MustCompile(`\b\d+(?:[/|:;,-]\d+){8,}\b`)
	// <width>/<offset?>/<blob> with a blob of at least nine 4-bit values.
	binaryKeyRe = regexp.MustCompile(`\b[01]{3,7}/(?:[01]+/)?[01]{36,}\b`)
	kvSecretRe  = regexp.MustCompile(`(?i)((?:key|plaintext|ciphertext)\s*[:=]\s*)(['"]?)([^\s'"]+)(['"]?)`)
)

// String masks anything in the provided string that looks like a key.
func String(in string) string {
	if strings.TrimSpace(in) == "" {
		return in
	}
	masked := kvSecretRe.ReplaceAllString(in, `$1$2`+redactedSecret+`$4`)
	masked = binaryKeyRe.ReplaceAllString(masked, redactedKey)
	masked = decimalKeyRe.ReplaceAllString(masked, redactedKey)
	return masked
}

// Interface redacts recognised sensitive values within nested structures.
func Interface(value any) any {
	switch v := value.(type) {
	case string:
		return String(v)
	case fmt.Stringer:
		return String(v.String())
	case []string:
		return Slice(v)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Interface(elem)
		}
		return out
	case map[string]any:
		return Map(v)
	default:
		return value
	}
}

// Map redacts sensitive values within a map of arbitrary values. Fields named
// in a never_persist entry and the cipher fields (key, plaintext, ciphertext,
// text) are replaced outright.
func Map(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	var toMask []string
	for k, v := range in {
		if strings.EqualFold(k, neverPersistKey) {
			toMask = append(toMask, collectNeverPersist(v)...)
			continue
		}
		if _, ok := sensitiveFields[strings.ToLower(k)]; ok {
			out[k] = redactedSecret
			continue
		}
		out[k] = Interface(v)
	}
	for _, key := range toMask {
		if _, ok := out[key]; ok {
			out[key] = redactedSecret
		}
	}
	return out
}

// Slice redacts sensitive values within a slice of strings.
func Slice(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = String(v)
	}
	return out
}

func collectNeverPersist(value any) []string {
	var raw []string
	switch v := value.(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				raw = append(raw, s)
				continue
			}
			raw = append(raw, fmt.Sprint(elem))
		}
	}
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
