package cmd

import (
	"os"
	"strings"
	"unicode"
)

const envExprPrefix = "${env."

// expandEnv replaces ${env.KEY} expressions with the value of KEY, empty when
// unset. Expressions with an invalid key are kept literally.
func expandEnv(value string) string {
	var b strings.Builder
	for {
		idx := strings.Index(value, envExprPrefix)
		if idx < 0 {
			b.WriteString(value)
			return b.String()
		}
		b.WriteString(value[:idx])
		rest := value[idx+len(envExprPrefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			b.WriteString(value[idx:])
			return b.String()
		}
		key := rest[:end]
		if !validEnvKey(key) {
			// keep the prefix and rescan what follows it
			b.WriteString(envExprPrefix)
			value = rest
			continue
		}
		b.WriteString(os.Getenv(key))
		value = rest[end+1:]
	}
}

func validEnvKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
