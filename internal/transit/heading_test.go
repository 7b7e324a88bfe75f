package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"N", "N"},
		{"nne", "NNE"},
		{" SW ", "SW"},
		{"", Unknown},
		{"sideways", Unknown},
		{"0", "N"},
		{"90", "E"},
		{"181", "S"},
		{"350", "N"},
		{"-90", "W"},
		{"22.5", "NNE"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeading(tt.in))
		})
	}
}

func TestHeadingIndicator(t *testing.T) {
	origin := Position{Lat: 47.5615, Lng: -52.7126}

	north := HeadingIndicator(origin, "N")
	assert.InDelta(t, origin.Lat+IndicatorLength, north.Lat, 1e-12)
	assert.InDelta(t, origin.Lng, north.Lng, 1e-12)

	east := HeadingIndicator(origin, "E")
	assert.InDelta(t, origin.Lat, east.Lat, 1e-12)
	assert.InDelta(t, origin.Lng+IndicatorLength, east.Lng, 1e-12)

	unknown := HeadingIndicator(origin, Unknown)
	assert.Equal(t, north, unknown)
}
