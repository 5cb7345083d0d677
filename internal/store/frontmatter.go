package store

import "time"

// GetString returns a string value from frontmatter.
func GetString(fm map[string]any, key string) string {
	if s, ok := fm[key].(string); ok {
		return s
	}
	return ""
}

// GetInt returns an int value from frontmatter. YAML and JSON decoders
// disagree on number types, so every common one is accepted.
func GetInt(fm map[string]any, key string) int {
	switch n := fm[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// GetTime returns a timestamp from frontmatter, accepting both decoded
// time.Time values and RFC 3339 strings.
func GetTime(fm map[string]any, key string) time.Time {
	switch t := fm[key].(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// FormatTime formats a time for frontmatter storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
