// README: Route service: resolves locations, drives the engine, and fans results out to users, events and metrics.
package route

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"carpool/internal/events"
	"carpool/internal/logger"
	"carpool/internal/maps"
	"carpool/internal/notify"
	"carpool/internal/types"
)

type Service struct {
	registry   *Registry
	guard      *AdmissionGuard
	dispatcher *CloseDispatcher
	tracker    *LiveTracker

	provider  RoutingProvider
	cipher    Cipher
	settings  Settings
	notifier  notify.Notifier
	publisher Publisher
	eventLog  EventLog
	positions PositionRecorder
	rec       Recorder
	log       logger.Logger
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option   { return func(s *Service) { s.notifier = n } }
func WithPublisher(p Publisher) Option        { return func(s *Service) { s.publisher = p } }
func WithEventLog(l EventLog) Option          { return func(s *Service) { s.eventLog = l } }
func WithPositions(p PositionRecorder) Option { return func(s *Service) { s.positions = p } }
func WithRecorder(r Recorder) Option          { return func(s *Service) { s.rec = r } }
func WithLogger(l logger.Logger) Option       { return func(s *Service) { s.log = l } }
func WithRegistry(g *Registry) Option         { return func(s *Service) { s.registry = g } }

func NewService(provider RoutingProvider, cipher Cipher, settings Settings, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		cipher:   cipher,
		settings: settings.withDefaults(),
		rec:      nopRecorder{},
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.log)
	}
	s.guard = NewAdmissionGuard(provider, cipher, s.settings, s.rec, s.log.With("part", "admission"))
	s.dispatcher = NewCloseDispatcher(provider, cipher, s.settings, s.rec, s.log.With("part", "dispatch"))
	s.tracker = NewLiveTracker(provider, cipher, s.settings, s.rec, s.log.With("part", "tracker"))
	return s
}

type OpenCommand struct {
	DriverID types.ID
	// Origin is "lat,lon" or a free-text address.
	Origin string
}

type JoinCommand struct {
	PassengerID types.ID
	Location    string
}

type FinishCommand struct {
	DriverID types.ID
}

type LocationCommand struct {
	DriverID types.ID
	Lat      float64
	Lng      float64
	Seq      uint64
}

type JoinOutcome struct {
	DriverID types.ID `json:"driver_id"`
	JoinResult
}

// ResolveLocation accepts "lat,lon" directly and geocodes anything else.
func (s *Service) ResolveLocation(ctx context.Context, input string) (types.Point, error) {
	if p, err := types.ParsePoint(input); err == nil {
		return p, nil
	}
	p, err := timed(ctx, s.settings.ProviderTimeout, s.rec, "geocode", func(ctx context.Context) (types.Point, error) {
		return s.provider.Geocode(ctx, input)
	})
	if errors.Is(err, maps.ErrNotFound) {
		return types.Point{}, fmt.Errorf("%w: address %q not found", ErrBadRequest, input)
	}
	if err != nil {
		return types.Point{}, err
	}
	return p, nil
}

func (s *Service) OpenRoute(ctx context.Context, cmd OpenCommand) (Snapshot, error) {
	if cmd.DriverID == "" || cmd.Origin == "" {
		return Snapshot{}, ErrBadRequest
	}
	origin, err := s.ResolveLocation(ctx, cmd.Origin)
	if err != nil {
		return Snapshot{}, err
	}
	enc, err := s.cipher.Encrypt(origin.String())
	if err != nil {
		return Snapshot{}, fmt.Errorf("encrypt origin: %w", err)
	}
	r := s.registry.Open(cmd.DriverID, enc)
	if s.positions != nil {
		// Tick sequence restarts with every route.
		if perr := s.positions.Reset(ctx, cmd.DriverID); perr != nil {
			s.log.Warnf("reset position of driver %s: %v", cmd.DriverID, perr)
		}
	}
	s.rec.OpenRoutes(len(s.registry.OpenRoutes()))
	s.log.Infof("driver %s opened a route", cmd.DriverID)

	s.notifyOne(ctx, cmd.DriverID, notify.RouteOpened())
	s.emit(ctx, events.New(events.TypeRouteOpened, cmd.DriverID, "", nil))
	return r.Snapshot(), nil
}

// Join admits the passenger into the joinable route (the oldest open one).
func (s *Service) Join(ctx context.Context, cmd JoinCommand) (JoinOutcome, error) {
	if cmd.PassengerID == "" || cmd.Location == "" {
		return JoinOutcome{}, ErrBadRequest
	}
	loc, err := s.ResolveLocation(ctx, cmd.Location)
	if err != nil {
		return JoinOutcome{}, err
	}
	r, err := s.registry.FirstOpen()
	if err != nil {
		return JoinOutcome{}, err
	}
	enc, err := s.cipher.Encrypt(loc.String())
	if err != nil {
		return JoinOutcome{}, fmt.Errorf("encrypt pickup: %w", err)
	}
	res, err := s.guard.TryJoin(ctx, r, cmd.PassengerID, enc)
	if err != nil {
		return JoinOutcome{}, err
	}
	s.rec.JoinDecision(res.Outcome())
	out := JoinOutcome{DriverID: r.DriverID(), JoinResult: res}

	data := map[string]any{"outcome": res.Outcome()}
	if res.TotalDuration != nil {
		data["total_duration_seconds"] = int(res.TotalDuration.Seconds())
	}
	if res.Accepted {
		s.log.Infof("passenger %s joined route %s", cmd.PassengerID, r.DriverID())
		s.notifyOne(ctx, cmd.PassengerID, notify.JoinAccepted(r.DriverID()))
		s.emit(ctx, events.New(events.TypeJoinAccepted, r.DriverID(), cmd.PassengerID, data))
	} else {
		s.log.Infof("passenger %s rejected from route %s: %s", cmd.PassengerID, r.DriverID(), res.Reason)
		s.notifyOne(ctx, cmd.PassengerID, notify.JoinRejected(string(res.Reason)))
		s.emit(ctx, events.New(events.TypeJoinRejected, r.DriverID(), cmd.PassengerID, data))
	}
	return out, nil
}

// Finish closes admission for the driver's route and tells every passenger.
func (s *Service) Finish(ctx context.Context, cmd FinishCommand) (ClosedSummary, error) {
	r, err := s.registry.Get(cmd.DriverID)
	if err != nil {
		return ClosedSummary{}, err
	}
	summary, err := s.dispatcher.Close(ctx, r)
	if err != nil {
		return ClosedSummary{}, err
	}
	s.rec.OpenRoutes(len(s.registry.OpenRoutes()))
	s.log.Infof("driver %s finished admission with %d passengers (optimized=%t)", cmd.DriverID, len(summary.PassengerIDs), summary.Optimized)

	for i, pid := range summary.PassengerIDs {
		s.notifyOne(ctx, pid, notify.RouteFormed(cmd.DriverID, i))
	}
	data := map[string]any{
		"phase_id":      summary.PhaseID,
		"passenger_ids": summary.PassengerIDs,
		"optimized":     summary.Optimized,
	}
	if summary.TotalDuration != nil {
		data["total_duration_seconds"] = int(summary.TotalDuration.Seconds())
	}
	s.emit(ctx, events.New(events.TypeRouteClosed, cmd.DriverID, "", data))
	return summary, nil
}

// UpdateLocation feeds one driver tick through the tracker. Provider failures
// are logged and reported as OutcomeUnavailable; the next tick retries.
func (s *Service) UpdateLocation(ctx context.Context, cmd LocationCommand) (TrackResult, error) {
	p := types.Point{Lat: cmd.Lat, Lng: cmd.Lng}
	if cmd.DriverID == "" || !p.Valid() {
		return TrackResult{}, ErrBadRequest
	}
	r, err := s.registry.Get(cmd.DriverID)
	if err != nil {
		return TrackResult{}, err
	}
	res, err := s.tracker.OnLocation(ctx, r, Tick{Lat: cmd.Lat, Lng: cmd.Lng, Seq: cmd.Seq})
	if errors.Is(err, ErrStaleTick) {
		s.rec.TrackingOutcome(string(res.Outcome))
		return res, err
	}
	if s.positions != nil {
		if perr := s.positions.Record(ctx, cmd.DriverID, p, res.Seq); perr != nil {
			s.log.Warnf("record position for driver %s: %v", cmd.DriverID, perr)
		}
	}
	if err != nil {
		s.log.Warnf("eta for driver %s to passenger %s unavailable: %v", cmd.DriverID, res.PassengerID, err)
		s.rec.TrackingOutcome(string(OutcomeUnavailable))
		return res, nil
	}
	s.rec.TrackingOutcome(string(res.Outcome))

	switch res.Outcome {
	case OutcomeArrived:
		s.log.Infof("driver %s arrived at passenger %s", cmd.DriverID, res.PassengerID)
		s.notifyOne(ctx, cmd.DriverID, notify.Arrived(res.PassengerID))
		s.emit(ctx, events.New(events.TypeArrival, cmd.DriverID, res.PassengerID, map[string]any{
			"distance_meters": res.DistanceMeters,
		}))
	case OutcomeNotified:
		s.notifyOne(ctx, res.PassengerID, notify.Proximity(res.Minutes))
		s.emit(ctx, events.New(events.TypeProximity, cmd.DriverID, res.PassengerID, map[string]any{
			"eta_minutes": res.Minutes,
		}))
	}
	return res, nil
}

type ETAEntry struct {
	PassengerID types.ID   `json:"passenger_id,omitempty"`
	ETA         *time.Time `json:"eta"`
}

type ETAReport struct {
	DriverID    types.ID   `json:"driver_id"`
	Passengers  []ETAEntry `json:"passengers"`
	Destination ETAEntry   `json:"destination"`
}

// ETAReport lists the last computed arrival time per passenger in dispatch
// order plus the destination; nil means unknown.
func (s *Service) ETAReport(ctx context.Context, driverID types.ID) (ETAReport, error) {
	r, err := s.registry.Get(driverID)
	if err != nil {
		return ETAReport{}, err
	}
	r.mu.Lock()
	if len(r.eta) == 0 {
		r.mu.Unlock()
		return ETAReport{}, ErrNoETA
	}
	pickupsEnc := append([]string(nil), r.pickupLocations...)
	passengers := append([]types.ID(nil), r.passengerIDs...)
	eta := make(map[string]time.Time, len(r.eta))
	for k, v := range r.eta {
		eta[k] = v
	}
	r.mu.Unlock()

	pickups, err := decryptAll(s.cipher, pickupsEnc)
	if err != nil {
		return ETAReport{}, fmt.Errorf("decrypt pickups: %w", err)
	}
	rep := ETAReport{DriverID: driverID, Passengers: make([]ETAEntry, len(passengers))}
	for i, pid := range passengers {
		rep.Passengers[i] = ETAEntry{PassengerID: pid, ETA: lookup(eta, pickups[i])}
	}
	rep.Destination = ETAEntry{ETA: lookup(eta, s.settings.Destination)}
	return rep, nil
}

func lookup(eta map[string]time.Time, key string) *time.Time {
	t, ok := eta[key]
	if !ok {
		return nil
	}
	return &t
}

func (s *Service) Routes() []Snapshot {
	all := s.registry.All()
	out := make([]Snapshot, len(all))
	for i, r := range all {
		out[i] = r.Snapshot()
	}
	return out
}

func (s *Service) Route(driverID types.ID) (Snapshot, error) {
	r, err := s.registry.Get(driverID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// End force-stops admission without dispatching.
func (s *Service) End(ctx context.Context, driverID types.ID) (Snapshot, error) {
	r, err := s.registry.Get(driverID)
	if err != nil {
		return Snapshot{}, err
	}
	r.mu.Lock()
	ok := r.end(time.Now())
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrAlreadyClosed
	}
	s.rec.OpenRoutes(len(s.registry.OpenRoutes()))
	s.log.Infof("route %s ended by administrator", driverID)
	s.emit(ctx, events.New(events.TypeRouteEnded, driverID, "", nil))
	return r.Snapshot(), nil
}

type Report struct {
	Total     int `json:"total"`
	Open      int `json:"open"`
	Completed int `json:"completed"`
}

func (s *Service) Report() Report {
	all := s.registry.All()
	rep := Report{Total: len(all)}
	for _, r := range all {
		if r.IsOpen() {
			rep.Open++
		}
	}
	rep.Completed = rep.Total - rep.Open
	return rep
}

// History returns the audit trail of a driver's routes, newest first.
func (s *Service) History(ctx context.Context, driverID types.ID, limit int) ([]events.Event, error) {
	if s.eventLog == nil {
		return nil, nil
	}
	return s.eventLog.List(ctx, driverID, limit)
}

func (s *Service) notifyOne(ctx context.Context, to types.ID, m notify.Message) {
	if err := s.notifier.Notify(ctx, to, m); err != nil {
		s.log.Warnf("notify %s (%s) failed: %v", to, m.Kind, err)
	}
}

func (s *Service) emit(ctx context.Context, e events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
	if s.eventLog != nil {
		if err := s.eventLog.Append(ctx, e); err != nil {
			s.log.Warnf("append %s event for driver %s: %v", e.Type, e.DriverID, err)
		}
	}
}

// FormatDuration renders a total route duration in hours, as shown to drivers.
func FormatDuration(d *time.Duration) string {
	if d == nil {
		return "unknown"
	}
	return strconv.FormatFloat(d.Hours(), 'f', 2, 64) + " h"
}
