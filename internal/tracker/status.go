package tracker

import (
	"errors"
	"strings"

	"bus-tracker/internal/apiclient"
)

// Connectivity is the informational backend status shown next to the map.
type Connectivity string

const (
	Connecting Connectivity = "connecting"
	Connected  Connectivity = "connected"
	Errored    Connectivity = "error"
	Offline    Connectivity = "offline"
)

// Status keys.
const (
	keyRoutes   = "routes"
	keyStops    = "stops"
	keyServices = "services"
	keyVehicles = "vehicles"
)

// statusLog accumulates one message per failing source, in the order the
// sources first failed. A source that fails again replaces its own message.
type statusLog struct {
	order    []string
	messages map[string]string
}

func (s *statusLog) set(key, msg string) {
	if s.messages == nil {
		s.messages = make(map[string]string)
	}
	if _, ok := s.messages[key]; !ok {
		s.order = append(s.order, key)
	}
	s.messages[key] = msg
}

func (s *statusLog) clear(key string) {
	if _, ok := s.messages[key]; !ok {
		return
	}
	delete(s.messages, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *statusLog) reset() {
	s.order = nil
	s.messages = nil
}

func (s *statusLog) String() string {
	parts := make([]string, 0, len(s.order))
	for _, k := range s.order {
		parts = append(parts, s.messages[k])
	}
	return strings.Join(parts, " | ")
}

// feedErrorMessage distinguishes a backend that answered success=false from
// one that could not be reached.
func feedErrorMessage(err error) string {
	var ue *apiclient.UnsuccessfulError
	if errors.As(err, &ue) {
		return "API Error: " + ue.Message
	}
	return "Connection Error: " + err.Error()
}
