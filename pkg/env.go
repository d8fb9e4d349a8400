package pkg

import (
	"strings"
)

// ParseList splits a comma-separated value into trimmed, non-empty items
func ParseList(value string) []string {
	if value == "" {
		return []string{}
	}

	items := make([]string, 0)

	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}

	return items
}
