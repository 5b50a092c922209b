package core

import "strings"

// CleanString trims leading and trailing whitespace.
func CleanString(s string) string {
	return strings.TrimSpace(s)
}
