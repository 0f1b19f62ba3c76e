package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/ambworks/spc-server/internal/alerting"
	"github.com/ambworks/spc-server/internal/database"
	"github.com/ambworks/spc-server/internal/queue"
	"github.com/ambworks/spc-server/internal/timer"
	"github.com/ambworks/spc-server/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Escalation Service...")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Connect to Redis for alert dedup state
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	fmt.Println("Connected to Redis")

	// Publisher for escalation notifications
	alertPublisher := queue.NewAlertPublisher(queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts))
	defer alertPublisher.Close()

	// The escalation service shares the alert manager with the main server
	// but only drives the stale-alert sweep.
	stateStore := alerting.NewRedisStateStore(redisClient, cfg.Alerting.StateTTL)
	alertManager := alerting.NewManager(db, stateStore, alertPublisher,
		cfg.Alerting.DispatchRetries, cfg.Alerting.DispatchBackoff)

	// Create scheduler
	scheduler := timer.NewScheduler()
	scheduler.Start()
	defer scheduler.Stop()

	ctx := context.Background()

	sweep := func() {
		fmt.Println("\n--- Running Escalation Sweep ---")
		escalated, err := alertManager.EscalateStale(ctx, cfg.Alerting.EscalationAge)
		if err != nil {
			log.Printf("Escalation sweep failed: %v\n", err)
			return
		}
		fmt.Printf("Escalated %d stale alerts\n", escalated)
		fmt.Println("--- Escalation Sweep Complete ---")
	}

	if err := scheduler.ScheduleRepeating("escalation-sweep", cfg.Alerting.SweepInterval, sweep); err != nil {
		log.Fatalf("Failed to schedule escalation sweep: %v", err)
	}
	fmt.Printf("Escalation sweep scheduled every %s (age threshold %s)\n",
		cfg.Alerting.SweepInterval, cfg.Alerting.EscalationAge)

	fmt.Println("\n✓ Escalation Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}
