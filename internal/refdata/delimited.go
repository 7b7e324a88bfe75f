package refdata

import (
	"strings"

	"bus-tracker/internal/transit"
)

// ParseDelimited parses header-first comma-separated text into records keyed
// by header name. Values have quote characters stripped and whitespace
// trimmed. Rows shorter than the header are padded with empty strings. Blank
// lines are skipped.
//
// Fields are split on every comma; quoted fields containing commas are not
// supported by the resources this reads.
func ParseDelimited(text string) []transit.Record {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil
	}
	headers := strings.Split(lines[0], ",")
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
	}
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")

	out := make([]transit.Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		values := strings.Split(line, ",")
		rec := make(transit.Record, len(headers))
		for i, h := range headers {
			v := ""
			if i < len(values) {
				v = strings.TrimSpace(strings.ReplaceAll(values[i], `"`, ""))
			}
			rec[h] = v
		}
		out = append(out, rec)
	}
	return out
}
