package mimeutil

import "strings"

// ParseHeaders unfolds continuation lines (leading whitespace joins the
// previous line), lowercases keys, and keeps the last occurrence of a
// repeated header — matching the "raw headers" map retained on an
// EmailReply row.
func ParseHeaders(raw string) map[string]string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	unfolded := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(unfolded) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			unfolded[len(unfolded)-1] += " " + strings.TrimSpace(line)
			continue
		}
		unfolded = append(unfolded, line)
	}

	headers := make(map[string]string)
	for _, line := range unfolded {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		headers[key] = val // last occurrence wins
	}
	return headers
}
