package tracker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"bus-tracker/internal/apiclient"
)

func TestStatusLog(t *testing.T) {
	var s statusLog
	assert.Equal(t, "", s.String())

	s.set(keyStops, "Stops loading failed")
	s.set(keyRoutes, "Routes loading failed")
	assert.Equal(t, "Stops loading failed | Routes loading failed", s.String())

	s.set(keyStops, "again")
	assert.Equal(t, "again | Routes loading failed", s.String())

	s.clear(keyStops)
	s.clear("missing")
	assert.Equal(t, "Routes loading failed", s.String())

	s.reset()
	assert.Equal(t, "", s.String())
}

func TestFeedErrorMessage(t *testing.T) {
	wrapped := fmt.Errorf("poll: %w", &apiclient.UnsuccessfulError{Path: "/buses", Message: "no data"})
	assert.Equal(t, "API Error: no data", feedErrorMessage(wrapped))
	assert.Equal(t, "Connection Error: boom", feedErrorMessage(errors.New("boom")))
}
