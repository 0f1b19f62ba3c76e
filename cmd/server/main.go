package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ambworks/spc-server/internal/alerting"
	"github.com/ambworks/spc-server/internal/connection"
	"github.com/ambworks/spc-server/internal/database"
	"github.com/ambworks/spc-server/internal/engine"
	"github.com/ambworks/spc-server/internal/queue"
	"github.com/ambworks/spc-server/internal/server"
	"github.com/ambworks/spc-server/internal/timer"
	"github.com/ambworks/spc-server/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting SPC Server...")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Run migrations
	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Connect to Redis for alert dedup state
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	fmt.Println("Connected to Redis")

	// Create Kafka topics
	if err := queue.CreateTopic(
		cfg.Kafka.Brokers,
		cfg.Kafka.TopicReadings,
		cfg.Kafka.NumPartitions,
		1, // replication factor
	); err != nil {
		fmt.Printf("Note: Topic creation failed (may already exist): %v\n", err)
	}

	if err := queue.CreateTopic(
		cfg.Kafka.Brokers,
		cfg.Kafka.TopicAlerts,
		1, // single partition for alerts
		1, // replication factor
	); err != nil {
		fmt.Printf("Note: Topic creation failed (may already exist): %v\n", err)
	}

	// Create Kafka publishers
	readingPublisher := queue.NewReadingPublisher(queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings))
	defer readingPublisher.Close()

	alertPublisher := queue.NewAlertPublisher(queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts))
	defer alertPublisher.Close()
	fmt.Println("Kafka publishers initialized")

	// Start the async reading writer behind the repository
	readingWriter := database.NewReadingWriter(db, 100, 5*time.Second, 10000)
	readingWriter.Start(context.Background())
	defer readingWriter.Stop()
	fmt.Println("Reading writer started")

	repo := database.NewRepository(db, readingWriter)

	// Create alert manager with Redis-backed dedup state
	stateStore := alerting.NewRedisStateStore(redisClient, cfg.Alerting.StateTTL)
	alertManager := alerting.NewManager(db, stateStore, alertPublisher,
		cfg.Alerting.DispatchRetries, cfg.Alerting.DispatchBackoff)
	fmt.Println("Alert manager initialized")

	// Create the statistics engine
	eng := engine.New(cfg.SPC, repo, alertManager, readingPublisher)
	fmt.Printf("Statistics engine initialized (window=%d, subgroup=%d, sigma=%.1f)\n",
		cfg.SPC.WindowSize, cfg.SPC.SubgroupSize, cfg.SPC.SigmaLevel)

	// Create connection manager
	connManager := connection.NewManager(cfg.TCPServer.MaxConnections)
	fmt.Println("Connection manager initialized")

	// Create scheduler for inactivity timers
	scheduler := timer.NewScheduler()
	scheduler.Start()
	defer scheduler.Stop()
	fmt.Println("Scheduler started")

	// Create TCP server
	tcpServer := server.NewTCPServer(&cfg.TCPServer, connManager, scheduler, eng)
	if err := tcpServer.Start(); err != nil {
		log.Fatalf("Failed to start TCP server: %v", err)
	}
	defer tcpServer.Stop()

	// Print statistics periodically
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := connManager.Stats()
			fmt.Printf("\n--- Server Statistics ---\n")
			fmt.Printf("Active Connections: %d / %d\n", stats.TotalConnections, stats.MaxConnections)
			fmt.Printf("Unique Stations: %d\n", stats.UniqueStations)
			fmt.Printf("Scheduled Timers: %d\n", scheduler.Pending())
			fmt.Printf("------------------------\n\n")
		}
	}()

	fmt.Println("\n✓ SPC Server is running")
	fmt.Printf("✓ TCP Server listening on port %d\n", cfg.TCPServer.Port)
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}
