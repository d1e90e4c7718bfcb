// README: Driver location ticks over MQTT, fed into the live tracker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"carpool/internal/logger"
	"carpool/internal/modules/route"
	"carpool/internal/types"
)

var ErrTopicMismatch = errors.New("topic does not match subscription")

// LocationPayload is what drivers publish on carpool/drivers/<id>/location.
type LocationPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Seq uint64  `json:"seq"`
}

// LocationUpdater is satisfied by *route.Service.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, cmd route.LocationCommand) (route.TrackResult, error)
}

type LocationSubscriber struct {
	client  *MqttClient
	topic   string
	updater LocationUpdater
	timeout time.Duration
	log     logger.Logger
}

func NewLocationSubscriber(client *MqttClient, topic string, updater LocationUpdater, timeout time.Duration, log logger.Logger) *LocationSubscriber {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LocationSubscriber{client: client, topic: topic, updater: updater, timeout: timeout, log: log}
}

// Run subscribes and blocks until ctx is done.
func (s *LocationSubscriber) Run(ctx context.Context) error {
	if err := s.client.Subscribe(s.topic, 1, s.Handler(ctx)); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.log.Infof("subscribed to %s", s.topic)
	<-ctx.Done()
	if err := s.client.Unsubscribe(s.topic); err != nil {
		s.log.Warnf("unsubscribe %s: %v", s.topic, err)
	}
	return nil
}

// Handler decodes one tick and hands it to the updater. Errors are logged;
// MQTT has no reply channel.
func (s *LocationSubscriber) Handler(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		cmd, err := ParseLocation(s.topic, msg.Topic(), msg.Payload())
		if err != nil {
			s.log.Warnf("drop location message on %s: %v", msg.Topic(), err)
			return
		}
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res, err := s.updater.UpdateLocation(cctx, cmd)
		switch {
		case errors.Is(err, route.ErrStaleTick):
			s.log.Debugf("stale tick %d from driver %s", cmd.Seq, cmd.DriverID)
		case errors.Is(err, route.ErrNotFound):
			s.log.Debugf("location from driver %s without a route", cmd.DriverID)
		case err != nil:
			s.log.Warnf("location from driver %s: %v", cmd.DriverID, err)
		default:
			s.log.Debugf("driver %s tick %d: %s", cmd.DriverID, res.Seq, res.Outcome)
		}
	}
}

// ParseLocation extracts the driver id from the segment matched by "+" in
// pattern and decodes the JSON payload.
func ParseLocation(pattern, topic string, payload []byte) (route.LocationCommand, error) {
	want := strings.Split(pattern, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return route.LocationCommand{}, ErrTopicMismatch
	}
	var driverID string
	for i := range want {
		switch want[i] {
		case "+":
			driverID = got[i]
		default:
			if want[i] != got[i] {
				return route.LocationCommand{}, ErrTopicMismatch
			}
		}
	}
	if driverID == "" {
		return route.LocationCommand{}, ErrTopicMismatch
	}

	var p LocationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return route.LocationCommand{}, fmt.Errorf("decode payload: %w", err)
	}
	if !(types.Point{Lat: p.Lat, Lng: p.Lon}).Valid() {
		return route.LocationCommand{}, types.ErrInvalidPoint
	}
	return route.LocationCommand{DriverID: types.ID(driverID), Lat: p.Lat, Lng: p.Lon, Seq: p.Seq}, nil
}
