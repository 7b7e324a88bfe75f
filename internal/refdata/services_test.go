package refdata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bus-tracker/internal/transit"
)

func TestParseServices(t *testing.T) {
	text := `route_id,stop_ids
1,"[100, 101,,102]"
2,[200,201]
  10,"[300]"
garbage line
3,not-a-list
4,"[]"
`
	got := ParseServices(text)

	assert.Equal(t, transit.RouteServiceMap{
		"1":  {"100", "101", "102"},
		"2":  {"200", "201"},
		"10": {"300"},
		"4":  {},
	}, got)
	_, ok := got["3"]
	assert.False(t, ok)
}

func TestParseServicesNonNumericRoute(t *testing.T) {
	// Non-numeric ids only match the unquoted form.
	got := ParseServices("X1,[5,6]\nX2,\"[7]\"\n")
	assert.Equal(t, []string{"5", "6"}, got["X1"])
	_, ok := got["X2"]
	assert.False(t, ok)
}

func TestParseServicesEmpty(t *testing.T) {
	assert.Empty(t, ParseServices(""))
	assert.Empty(t, ParseServices("route_id,stops\n"))
}
