// README: Entry point; loads config, wires storage and services, starts the HTTP server and lifecycle scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carpool/internal/config"
	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/maps"
	"carpool/internal/metrics"
	"carpool/internal/modules/lease"
	"carpool/internal/notify"
	"carpool/internal/service"
	"carpool/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	var uow storage.UnitOfWork
	var leaser service.Leaser
	switch cfg.Storage {
	case config.StorageMemory:
		uow = storage.NewMemory()
	default:
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer dbPool.Close()
		uow = storage.NewPostgres(dbPool)

		redisClient := infra.NewRedis(cfg.Redis.Addr)
		defer redisClient.Close()
		if err := infra.PingRedis(ctx, redisClient); err != nil {
			log.Printf("job lease disabled: %v", err)
		} else {
			leaser = lease.NewStore(redisClient)
		}
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.AMQP.URL != "" {
		pub := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		defer pub.Close()
		notifier = pub
	}

	var routes service.RouteEstimator = maps.NewStraightLine()
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		routes = rs
	}

	tripSvc := service.NewTripService(uow, routes)
	bookingSvc := service.NewBookingService(uow, notifier)
	cascadeSvc := service.NewCascadeService(uow, notifier)
	lifecycleSvc := service.NewLifecycleService(uow, leaser, cfg.Jobs.PendingTTLHours)
	lifecycleSvc.LeaseTTL = cfg.Jobs.LeaseTTL

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Trips:     tripSvc,
		Bookings:  bookingSvc,
		Cascade:   cascadeSvc,
		Lifecycle: lifecycleSvc,
		Verifier:  verifier,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go lifecycleSvc.RunScheduler(ctx, cfg.Jobs.Tick)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s (storage=%s)", cfg.HTTP.Addr, cfg.Storage)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// newVerifier picks Firebase when a project is configured. Dev tokens are
// only accepted with CARPOOL_AUTH_DEV=true; otherwise startup fails.
func newVerifier(ctx context.Context, cfg config.Config) (infra.TokenVerifier, error) {
	if cfg.Firebase.ProjectID != "" {
		v, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("firebase init: %w", err)
		}
		return v, nil
	}
	if !cfg.Auth.Dev {
		return nil, errors.New("CARPOOL_FIREBASE_PROJECT_ID is required (set CARPOOL_AUTH_DEV=true for local dev tokens)")
	}
	log.Printf("CARPOOL_AUTH_DEV set; accepting unsigned dev tokens")
	return infra.DevVerifier{}, nil
}
