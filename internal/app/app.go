// README: Composition root; builds the route engine and every optional integration from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	gmaps "googlemaps.github.io/maps"

	"carpool/internal/cipher"
	"carpool/internal/config"
	"carpool/internal/events"
	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/logger"
	"carpool/internal/maps"
	"carpool/internal/metrics"
	"carpool/internal/modules/location"
	"carpool/internal/modules/route"
	"carpool/internal/mqtt"
	"carpool/internal/notify"
	"carpool/internal/types"
)

type App struct {
	cfg *config.Config
	log logger.Logger

	Routes   *route.Service
	Location *location.Service
	Server   *httptransport.Server

	bus     *events.Bus
	hub     *httptransport.Hub
	kafka   *events.KafkaPublisher
	mqtt    *mqtt.MqttClient
	mqttSub *mqtt.LocationSubscriber
	metrics http.Handler

	db    *pgxpool.Pool
	redis *redis.Client
}

// Settings maps the route section of the config onto engine settings.
func Settings(cfg config.RouteConfig) route.Settings {
	return route.Settings{
		Destination:        cfg.Destination,
		DurationBudget:     cfg.DurationBudget,
		ProximityThreshold: cfg.ProximityThreshold,
		ArrivalRadiusM:     cfg.ArrivalRadiusM,
		ProviderTimeout:    cfg.ProviderTimeout,
		JoinAttempts:       cfg.JoinAttempts,
	}
}

// New wires the application. Integrations whose address is empty stay off.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	a := &App{cfg: cfg, log: logger.New("app"), bus: events.NewBus()}

	key, err := cipher.LoadOrCreateKey(cfg.Cipher.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("cipher key: %w", err)
	}
	locCipher, err := cipher.New(key)
	if err != nil {
		return nil, err
	}
	provider, err := maps.NewRouteService(cfg.Maps.APIKey, gmaps.WithHTTPClient(&http.Client{Timeout: cfg.Maps.Timeout}))
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	rec, err := metrics.NewPromRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.metrics = metrics.Handler(reg)

	opts := []route.Option{
		route.WithPublisher(a.bus),
		route.WithRecorder(rec),
		route.WithLogger(logger.New("route")),
	}

	if cfg.DB.DSN != "" {
		a.db, err = infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		opts = append(opts, route.WithEventLog(route.NewStore(a.db)))
	}

	if cfg.Redis.Addr != "" {
		a.redis, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			a.Close()
			return nil, err
		}
		store := location.NewStore(a.redis)
		dest, err := types.ParsePoint(cfg.Route.Destination)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Location = location.NewService(store, dest)
		opts = append(opts, route.WithPositions(store))
	}

	var verifier infra.TokenVerifier = infra.DevVerifier{}
	if cfg.Firebase.ProjectID != "" {
		fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		verifier = fb.Verifier
		opts = append(opts, route.WithNotifier(notify.NewFCMNotifier(fb.Messaging, logger.New("notify"))))
	} else {
		a.log.Warnf("firebase not configured: accepting <role>:<uid> dev tokens, notifications are logged only")
	}

	a.Routes = route.NewService(provider, locCipher, Settings(cfg.Route), opts...)

	if len(cfg.Kafka.Brokers) > 0 {
		a.kafka = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger.New("kafka"))
	}

	if cfg.MQTT.Broker != "" {
		a.mqtt, err = mqtt.NewMqttClient(cfg.MQTT.Broker, cfg.MQTT.ClientID, nil)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("mqtt connect: %w", err)
		}
		a.mqttSub = mqtt.NewLocationSubscriber(a.mqtt, cfg.MQTT.Topic, a.Routes, cfg.Route.ProviderTimeout, logger.New("mqtt"))
	}

	a.hub = httptransport.NewHub(logger.New("ws"))
	a.Server = httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Routes:   a.Routes,
		Location: a.Location,
		Verifier: verifier,
		Hub:      a.hub,
		Metrics:  a.metrics,
		Log:      logger.New("http"),
	})
	return a, nil
}

// Run starts the background consumers and the HTTP server and blocks until
// ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	hubSub := a.bus.Subscribe()
	spawn(func() { a.hub.Run(ctx, hubSub) })
	if a.kafka != nil {
		kafkaSub := a.bus.Subscribe()
		spawn(func() { a.kafka.Run(ctx, kafkaSub) })
	}
	if a.mqttSub != nil {
		spawn(func() {
			if err := a.mqttSub.Run(ctx); err != nil {
				a.log.Errorf("mqtt subscriber: %v", err)
			}
		})
	}
	if a.cfg.Metrics.Addr != "" {
		spawn(func() {
			if err := metrics.StartPromServer(ctx, a.cfg.Metrics.Addr, a.metrics); err != nil {
				a.log.Errorf("prom server: %v", err)
			}
		})
	}

	err := a.Server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Close releases external connections. Safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error
	a.bus.Close()
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	return errors.Join(errs...)
}
