package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"trade-journal-go/internal/config"
	"trade-journal-go/internal/database"
	"trade-journal-go/internal/importer"
	"trade-journal-go/internal/journal"
	"trade-journal-go/internal/logger"
	"trade-journal-go/internal/stats"
	"trade-journal-go/internal/timeparse"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// All imported and manually entered datetimes are normalized into
	// this timezone; naive inputs are assumed to be in it.
	loc, err := time.LoadLocation(cfg.Import.Timezone)
	if err != nil {
		log.Fatal("Invalid import timezone", zap.String("timezone", cfg.Import.Timezone), zap.Error(err))
	}
	parser := timeparse.New(loc, log)

	service := journal.NewService(db, log, parser)
	csvImporter := importer.New(db, log, parser, cfg.Import.MaxUploadBytes, cfg.Import.BatchSize)
	statsEngine := stats.New(db, log)

	// The import endpoint is the only expensive one; throttle it.
	importLimiter := rate.NewLimiter(rate.Limit(cfg.Import.RateLimit), cfg.Import.RateLimitBurst)

	apiHandler := NewAPIHandler(log, service, csvImporter, statsEngine, importLimiter)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/trades", apiHandler.TradesHandler)
	mux.HandleFunc("/api/trades/note", apiHandler.TradeNoteHandler)
	mux.HandleFunc("/api/trades/strategy", apiHandler.TradeStrategyHandler)
	mux.HandleFunc("/api/trades/import", apiHandler.ImportHandler)
	mux.HandleFunc("/api/strategies", apiHandler.StrategiesHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)
	mux.HandleFunc("/api/comments", apiHandler.CommentsHandler)
	mux.HandleFunc("/api/coach/requests", apiHandler.CoachRequestsHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
