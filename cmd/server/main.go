package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rl1809/shophub/internal/adapter/auth"
	"github.com/rl1809/shophub/internal/adapter/handler"
	"github.com/rl1809/shophub/internal/adapter/mail"
	"github.com/rl1809/shophub/internal/adapter/messaging"
	"github.com/rl1809/shophub/internal/adapter/storage"
	"github.com/rl1809/shophub/internal/config"
	"github.com/rl1809/shophub/internal/core/service"
	"github.com/rl1809/shophub/internal/logger"
	"github.com/rl1809/shophub/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(logger.Options{Service: "shophub", Env: cfg.AppEnv, Level: cfg.LogLevel})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Schema migrations need multi-statement support, the pool does not.
	migrationDB, err := sql.Open("mysql", cfg.MySQLDSN(true))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql for migrations")
	}
	if err := storage.Migrate(migrationDB); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}
	migrationDB.Close()

	db, err := sql.Open("mysql", cfg.MySQLDSN(false))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	var publisher port.OrderEventPublisher = messaging.NewLogPublisher(log)
	var kafkaPublisher *messaging.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrderEventsTopic, log)
		publisher = kafkaPublisher
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.OrderEventsTopic).Msg("publishing order events to kafka")
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, order events are only logged")
	}

	var images port.ImageStore
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3ImageStore(ctx, cfg.S3Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure s3")
		}
		images = s3Store
	} else {
		log.Warn().Msg("S3_BUCKET not set, image uploads disabled")
	}

	var mailer port.Mailer = mail.NewLogMailer(log)
	if cfg.SMTPAddr != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Addr:      cfg.SMTPAddr,
			Host:      cfg.SMTPHost,
			From:      cfg.FromEmail,
			Password:  cfg.FromEmailPassword,
			ExpiresIn: cfg.OTPTTL.String(),
		})
	} else {
		log.Warn().Msg("SMTP_ADDR not set, verification codes are only logged")
	}

	orderService := service.NewOrderService(mysqlAdapter, mysqlAdapter, cfg.EventQueueSize, log)
	cartService := service.NewCartService(mysqlAdapter, mysqlAdapter)
	catalogService := service.NewCatalogService(mysqlAdapter, images)
	authService := service.NewAuthService(mysqlAdapter, redisAdapter, mailer, cfg.OTPTTL, cfg.OTPCooldown, log)

	waitWorkers := messaging.StartWorkers(cfg.EventWorkers, orderService.GetEventQueue(), publisher, log)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(orderService), verifier, log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	httpHandler := handler.NewHTTPHandler(handler.Services{
		Orders:  orderService,
		Carts:   cartService,
		Catalog: catalogService,
		Auth:    authService,
	}, cfg.CheckoutTimeout, log)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.NewRouter(httpHandler, verifier, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	// Close the event queue and let workers flush what is left.
	orderService.Close()
	waitWorkers()
	log.Info().Msg("workers stopped")

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("close kafka writer")
		}
	}
	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}
