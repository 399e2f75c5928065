package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/openledger/banksync/internal/banking/application"
	"github.com/openledger/banksync/internal/banking/domain"
	"github.com/openledger/banksync/internal/banking/infrastructure"
	"github.com/openledger/banksync/internal/banking/interfaces"
	"github.com/openledger/banksync/internal/classify"
	database "github.com/openledger/banksync/internal/db"
	"github.com/openledger/banksync/internal/logger"
	"github.com/openledger/banksync/internal/tink"
)

const defaultStaleAfter = 12 * time.Hour

type Response struct {
	Message string `json:"message"`
}

func loggingMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, errs ...[]string) {
	payload := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}
	if len(errs) > 0 && len(errs[0]) > 0 {
		payload["errors"] = errs[0]
	}
	respondJSON(w, status, payload)
}

// tinkAdapter narrows the concrete fetch client to the iterator interface the
// orchestrator consumes.
type tinkAdapter struct {
	*tink.Client
}

func (a tinkAdapter) FetchPages(accessToken, userID, externalAccountID string, from, to time.Time, includeAllStatuses bool) application.PageIterator {
	return a.Client.FetchPages(accessToken, userID, externalAccountID, from, to, includeAllStatuses)
}

type Server struct {
	router      *http.ServeMux
	syncHandler *interfaces.SyncHandler
	dbService   *database.DBService
}

func NewServer(syncHandler *interfaces.SyncHandler, dbService *database.DBService) *Server {
	return &Server{
		syncHandler: syncHandler,
		dbService:   dbService,
		router:      http.NewServeMux(),
	}
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(Response{Message: "Path not found"})
}

func checkConfiguration(log zerolog.Logger) error {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file, continuing with system environment variables")
	}

	if os.Getenv("DB_CONNECTION_STRING") == "" {
		return errors.New("no DB_CONNECTION_STRING provided")
	}
	if os.Getenv("TINK_BASE_URL") == "" {
		return errors.New("no TINK_BASE_URL provided")
	}
	return nil
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.dbService.Health())
}

func (s *Server) RegisterRoutes() {
	router := http.NewServeMux()
	router.Handle("POST /api/sync/initial", http.HandlerFunc(s.syncHandler.StartSync))
	router.Handle("POST /api/sync/range", http.HandlerFunc(s.syncHandler.SyncDateRange))
	router.Handle("GET /api/sync/status", http.HandlerFunc(s.syncHandler.GetSyncStatus))
	router.Handle("GET /api/ready", http.HandlerFunc(s.handleReady))
	router.Handle("/", http.HandlerFunc(notFoundHandler))
	s.router = router
}

func syncConfigFromEnv() application.SyncConfig {
	cfg := application.DefaultSyncConfig()
	if v, err := strconv.Atoi(os.Getenv("SYNC_MONTHS_BACK")); err == nil && v > 0 {
		cfg.MonthsBack = v
	}
	if v, err := strconv.Atoi(os.Getenv("SYNC_OVERLAP_DAYS")); err == nil && v > 0 {
		cfg.OverlapDays = v
	}
	return cfg
}

func main() {
	log := logger.New()

	if err := checkConfiguration(log); err != nil {
		log.Fatal().Err(err).Msg("missing configuration, update to start server")
	}

	dbService, err := database.NewDBService()
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize database")
	}
	defer dbService.Close()

	accountRepo := infrastructure.NewAccountRepository(dbService.DB)
	transactionRepo := infrastructure.NewTransactionRepository(dbService.DB)
	ruleRepo := infrastructure.NewRuleRepository(dbService.DB)

	ruleCache := classify.NewRuleCache(ruleRepo, classify.DefaultCacheTTL)
	engine := classify.NewEngine(ruleCache, log)

	var aiClassifier *classify.BatchClassifier
	if os.Getenv("AI_CLASSIFIER_ENABLED") == "true" {
		caller, err := classify.NewGeminiCaller(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize model classifier")
		}
		anonymizer := classify.NewAnonymizer(os.Getenv("ANONYMIZER_SALT"))
		aiClassifier = classify.NewBatchClassifier(caller, ruleCache, anonymizer, log)
		log.Info().Msg("model-backed classification fallback enabled")
	}
	pipeline := classify.NewPipeline(engine, aiClassifier)

	tinkClient := tink.NewClient(os.Getenv("TINK_BASE_URL"), log)
	store := application.NewTransactionStore(transactionRepo, pipeline, log)
	resolver := application.NewAccountResolver(accountRepo)
	orchestrator := application.NewSyncOrchestrator(
		accountRepo,
		store,
		tinkAdapter{tinkClient},
		resolver,
		syncConfigFromEnv(),
		log,
	)

	syncHandler := interfaces.NewSyncHandler(orchestrator, respondJSON, respondError)
	server := NewServer(syncHandler, dbService)
	server.RegisterRoutes()

	if err := StartRefreshScheduler(orchestrator, accountRepo.FindStale, log); err != nil {
		log.Fatal().Err(err).Msg("scheduler didn't start, stopping the app")
	}

	handler := loggingMiddleware(log, server.router)
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Info().Str("port", port).Msg("server starting")
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

type staleAccountsFunc = func(ctx context.Context, olderThan time.Time) ([]domain.Account, error)

// StartRefreshScheduler periodically re-syncs accounts whose last refresh is
// older than the staleness cutoff. Runs use the stored account token.
func StartRefreshScheduler(orchestrator *application.SyncOrchestrator, findStale staleAccountsFunc, log zerolog.Logger) error {
	schedule := os.Getenv("REFRESH_SCHEDULE")
	if schedule == "" {
		schedule = "@every 6h"
	}
	staleAfter := defaultStaleAfter
	if v, err := time.ParseDuration(os.Getenv("STALE_AFTER")); err == nil && v > 0 {
		staleAfter = v
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx := context.Background()
		accounts, err := findStale(ctx, time.Now().Add(-staleAfter))
		if err != nil {
			log.Error().Err(err).Msg("listing stale accounts failed")
			return
		}
		for _, account := range accounts {
			result := orchestrator.Sync(ctx, application.SyncRequest{
				UserID:           account.UserID,
				AccountID:        account.ID,
				IsConsentRefresh: true,
			})
			log.Info().
				Str("account_id", account.ID).
				Bool("success", result.Success).
				Int("created", result.TransactionsCreated).
				Int("updated", result.TransactionsUpdated).
				Msg("scheduled refresh completed")
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	return nil
}
