// README: One-shot runner for lifecycle jobs (trip auto-complete, pending expiry); suitable for cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"carpool/internal/config"
	"carpool/internal/infra"
	"carpool/internal/modules/lease"
	"carpool/internal/service"
	"carpool/internal/storage"
)

type options struct {
	Job      string
	TTLHours int
	Timeout  time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	opts := parseFlags(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	var leaser service.Leaser
	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()
	if err := infra.PingRedis(ctx, redisClient); err != nil {
		log.Printf("running without lease: %v", err)
	} else {
		leaser = lease.NewStore(redisClient)
	}

	svc := service.NewLifecycleService(storage.NewPostgres(dbPool), leaser, opts.TTLHours)
	svc.LeaseTTL = cfg.Jobs.LeaseTTL

	if err := run(ctx, svc, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags(cfg config.Config) options {
	var opts options
	flag.StringVar(&opts.Job, "job", "all", "Job to run: all, "+service.JobAutoComplete+" or "+service.JobExpirePending)
	flag.IntVar(&opts.TTLHours, "ttl-hours", cfg.Jobs.PendingTTLHours, "Pending booking TTL in hours")
	flag.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Total timeout")
	flag.Parse()
	return opts
}

func run(ctx context.Context, svc *service.LifecycleService, opts options) error {
	switch opts.Job {
	case "all":
		return svc.RunOnce(ctx)
	case service.JobAutoComplete:
		n, err := svc.AutoCompleteTrips(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d trips completed\n", opts.Job, n)
	case service.JobExpirePending:
		n, err := svc.ExpirePendingBookings(ctx, opts.TTLHours)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d bookings expired\n", opts.Job, n)
	default:
		return fmt.Errorf("unknown job %q", opts.Job)
	}
	return nil
}
