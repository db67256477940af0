package utils

import (
	"fmt"
	"strings"
)

// Preview flattens a response body onto one line and cuts it to limit runes,
// noting how much was dropped.
func Preview(body string, limit int) string {
	if limit <= 0 {
		return ""
	}
	flat := strings.Join(strings.Fields(body), " ")
	runes := []rune(flat)
	if len(runes) <= limit {
		return flat
	}
	return fmt.Sprintf("%s... (%d more runes)", string(runes[:limit]), len(runes)-limit)
}
