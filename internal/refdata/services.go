package refdata

import (
	"regexp"
	"strings"

	"bus-tracker/internal/transit"
)

var quotedServiceLine = regexp.MustCompile(`^(\d+),"(\[.*?\])"$`)

// ParseServices parses lines of the form `routeId,"[stopId,stopId,...]"`,
// falling back to the unquoted `routeId,[stopId,...]`. Header lines and lines
// matching neither form are skipped. A route listed twice keeps its last line.
func ParseServices(text string) transit.RouteServiceMap {
	out := transit.RouteServiceMap{}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "route_id") {
			continue
		}
		routeID, list, ok := splitServiceLine(line)
		if !ok {
			continue
		}
		out[routeID] = parseStopList(list)
	}
	return out
}

func splitServiceLine(line string) (routeID, list string, ok bool) {
	if m := quotedServiceLine.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}
	routeID, rest, found := strings.Cut(line, ",")
	if !found {
		return "", "", false
	}
	routeID = strings.TrimSpace(routeID)
	rest = strings.TrimSpace(rest)
	if routeID == "" || !strings.HasPrefix(rest, "[") || !strings.HasSuffix(rest, "]") {
		return "", "", false
	}
	return routeID, rest, true
}

func parseStopList(list string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(list, "["), "]")
	ids := []string{}
	for _, id := range strings.Split(inner, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
