package rerank

import "strings"

func normalize(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

func fields(q string) []string {
	return strings.Fields(q)
}
