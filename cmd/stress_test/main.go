package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/shophub/internal/adapter/storage"
	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/core/service"
	"github.com/rl1809/shophub/internal/logger"
)

const (
	defaultDSN    = "root:root@tcp(localhost:3306)/shophub"
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

func main() {
	ctx := context.Background()
	log := logger.New(logger.Options{Service: "stress_test", Env: "dev", Level: "warn"})

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = defaultDSN
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid MYSQL_DSN")
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	defer db.Close()
	db.SetMaxOpenConns(totalRequests)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect mysql")
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate")
	}

	adapter := storage.NewMySQLAdapter(db)

	now := time.Now().UTC()
	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        "Stress Test Keyboard",
		Description: "Limited run mechanical keyboard",
		Price:       decimal.RequireFromString("49.99"),
		Stock:       initialStock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := adapter.CreateProduct(ctx, product); err != nil {
		log.Fatal().Err(err).Msg("failed to seed product")
	}

	orderService := service.NewOrderService(adapter, adapter, queueSize, zerolog.Nop())
	defer orderService.Close()
	cartService := service.NewCartService(adapter, adapter)

	// Drain the event queue in background
	go func() {
		for range orderService.GetEventQueue() {
		}
	}()

	runID := uuid.NewString()[:8]
	buyers := make([]domain.Identity, totalRequests)
	for i := range buyers {
		buyers[i] = domain.Identity{UserID: fmt.Sprintf("stress-%s-%d", runID, i), Role: domain.RoleUser}
		if _, err := cartService.AddToCart(ctx, buyers[i], product.ID, 1); err != nil {
			log.Fatal().Err(err).Msg("failed to fill cart")
		}
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, buyer := range buyers {
		wg.Add(1)
		go func(id domain.Identity) {
			defer wg.Done()

			if _, err := orderService.Checkout(ctx, id); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(buyer)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Checkouts:  %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	final, err := adapter.GetProduct(ctx, product.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read final stock")
	}
	fmt.Printf("Final MySQL Stock: %d\n", final.Stock)

	if final.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Stock)
	}
}
