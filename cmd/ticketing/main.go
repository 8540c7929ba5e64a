package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"tikiti/internal/auth"
	"tikiti/internal/balance"
	balance_api "tikiti/internal/balance/api"
	balance_db "tikiti/internal/balance/db"
	"tikiti/internal/config"
	"tikiti/internal/database"
	"tikiti/internal/gateway"
	"tikiti/internal/inventory"
	inventory_db "tikiti/internal/inventory/db"
	"tikiti/internal/kafka"
	"tikiti/internal/logger"
	"tikiti/internal/notification"
	"tikiti/internal/purchase"
	purchase_api "tikiti/internal/purchase/api"
	purchase_db "tikiti/internal/purchase/db"
	"tikiti/internal/settlement"
	settlement_api "tikiti/internal/settlement/api"
	settlement_db "tikiti/internal/settlement/db"
	"tikiti/internal/token"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Could not connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	if cfg.AutoMigrate {
		if err := database.Migrate(sqldb, "migrations", log); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
		}
	}

	log.Info("DATABASE", "PostgreSQL connection established")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Warn("REDIS", "Redis disabled, token signature cache inactive")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable (%v), token signature cache inactive", err))
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("Redis connected at %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting ticketing service")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	redisClient := connectRedis(cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TicketSettled, cfg.Kafka.Topics.Withdrawals)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer ready, brokers %v", cfg.Kafka.Brokers))
	} else {
		log.Warn("KAFKA", "Kafka disabled, settlement events will not be published")
	}

	var tokenCache token.Cache
	if redisClient != nil {
		tokenCache = token.NewRedisCache(redisClient)
	}
	tokens := token.NewService(cfg.QRSecret, tokenCache)

	mailer := notification.NewMailer(cfg.Email, log)
	daraja := gateway.NewDaraja(cfg.Daraja, &http.Client{Timeout: 30 * time.Second}, log)

	inventoryService := inventory.NewService(&inventory_db.DB{Bun: bunDB}, log)
	purchaseDB := &purchase_db.DB{Bun: bunDB}
	purchaseService := purchase.NewService(purchaseDB, tokens, cfg.Fees, log)
	balanceService := balance.NewService(&balance_db.DB{Bun: bunDB}, publisherOrNil(producer), log)
	settlementService := settlement.NewService(
		&settlement_db.DB{Bun: bunDB},
		inventoryService,
		balanceService,
		settledPublisherOrNil(producer),
		mailer,
		log,
	)

	scanner := auth.NewScanner(purchaseDB, cfg.JWTKey)

	ticketHandler := purchase_api.NewHandler(purchaseService, daraja, log)
	scanHandler := purchase_api.NewScanHandler(purchaseService, scanner)
	settlementHandler := settlement_api.NewHandler(settlementService, log)
	balanceHandler := balance_api.NewHandler(balanceService)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", ticketHandler.CreateTicket)
			r.Get("/", ticketHandler.ListTicketsByPhone)
			r.Get("/{id}", ticketHandler.GetTicket)
			r.Get("/{id}/qr", ticketHandler.GetTicketQR)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/callback", settlementHandler.PaymentCallback)
			r.Get("/{reference}/status", settlementHandler.PaymentStatus)
		})

		r.Route("/scan", func(r chi.Router) {
			r.Post("/auth", scanHandler.Authenticate)
			r.Group(func(r chi.Router) {
				r.Use(scanner.Middleware)
				r.Post("/validate", scanHandler.Validate)
				r.Post("/redeem", scanHandler.Redeem)
			})
		})

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", balanceHandler.RequestWithdrawal)
			r.Get("/", balanceHandler.ListWithdrawals)
			r.Post("/{id}/process", balanceHandler.ProcessWithdrawal)
		})
		r.Get("/hosts/{hostID}/balance", balanceHandler.GetBalance)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Ticketing service listening on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	}
	log.Info("APP", "Ticketing service stopped")
}

// nil-interface guards: a nil *kafka.Producer inside a non-nil interface
// would dodge the services' nil checks.
func publisherOrNil(p *kafka.Producer) balance.Publisher {
	if p == nil {
		return nil
	}
	return p
}

func settledPublisherOrNil(p *kafka.Producer) settlement.Publisher {
	if p == nil {
		return nil
	}
	return p
}
