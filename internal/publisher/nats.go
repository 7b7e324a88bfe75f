package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"bus-tracker/internal/transit"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

type NATSPublisher struct {
	nc          Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	logger      *slog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("bus-tracker"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, prefix, logSubjects, m, logger), nil
}

func newPublisher(nc Conn, prefix string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m, logger: logger}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

type VehicleMessage struct {
	ID                string    `json:"id"`
	Number            string    `json:"number"`
	RouteNumber       string    `json:"routeNumber"`
	Lat               float64   `json:"lat"`
	Lng               float64   `json:"lng"`
	Heading           string    `json:"heading"`
	Speed             float64   `json:"speed"`
	Timestamp         string    `json:"timestamp,omitempty"`
	CurrentLocation   string    `json:"currentLocation,omitempty"`
	ScheduleDeviation string    `json:"scheduleDeviation,omitempty"`
	Service           string    `json:"service,omitempty"`
	PublishedAt       time.Time `json:"publishedAt"`
}

func NewVehicleMessage(v transit.Vehicle, at time.Time) VehicleMessage {
	return VehicleMessage{
		ID:                v.ID,
		Number:            v.Number,
		RouteNumber:       v.RouteNumber,
		Lat:               v.Position.Lat,
		Lng:               v.Position.Lng,
		Heading:           v.Heading,
		Speed:             v.Speed,
		Timestamp:         v.Timestamp,
		CurrentLocation:   v.CurrentLocation,
		ScheduleDeviation: v.ScheduleDeviation,
		Service:           v.Service,
		PublishedAt:       at,
	}
}

// PublishVehicles publishes one message per vehicle on
// <prefix>.<route>.<vehicle>. It keeps going after a failed publish and
// returns the first error.
func (p *NATSPublisher) PublishVehicles(vehicles []transit.Vehicle) error {
	now := time.Now().UTC()
	var first error
	for _, v := range vehicles {
		if err := p.PublishVehicle(NewVehicleMessage(v, now)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *NATSPublisher) PublishVehicle(msg VehicleMessage) error {
	subject := Subject(p.prefix, msg.RouteNumber, msg.ID)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", slog.String("subject", subject))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func Subject(prefix, route, vehicle string) string {
	if prefix == "" {
		return fmt.Sprintf("%s.%s", subjectToken(route), subjectToken(vehicle))
	}
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(route), subjectToken(vehicle))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
