package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"retail-ledger/internal/config"
	"retail-ledger/internal/domain"
	"retail-ledger/internal/handler"
	"retail-ledger/internal/repository"
	"retail-ledger/internal/service"
)

// Server represents the HTTP server
type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	redis  *redis.Client
	ledger *service.Ledger
	logger *slog.Logger
	port   string
}

// NewServer builds the storage backend, the usage tracker and the ledger,
// then mounts every route.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ctx := context.Background()
	s := &Server{logger: logger}

	store, err := s.openStore(ctx, cfg)
	if err != nil {
		s.closeClients()
		return nil, err
	}

	usage, err := s.openUsageTracker(ctx, cfg)
	if err != nil {
		s.closeClients()
		return nil, err
	}

	ledger, err := service.NewLedger(ctx, store, usage, cfg.Policy(), logger)
	if err != nil {
		s.closeClients()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	s.ledger = ledger
	s.reconcile(ctx)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(ledger)
	transactionHandler := handler.NewTransactionHandler(ledger)
	adminHandler := handler.NewAdminHandler(ledger)

	// Setup router
	router := mux.NewRouter()

	// Add middleware for logging
	router.Use(loggingMiddleware(logger))

	// Account routes
	router.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts", accountHandler.ListAccounts).Methods("GET")
	router.HandleFunc("/accounts", accountHandler.DeleteAllAccounts).Methods("DELETE")
	router.HandleFunc("/accounts/{account_number}", accountHandler.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{account_number}", accountHandler.DeleteAccount).Methods("DELETE")
	router.HandleFunc("/accounts/{account_number}/balance", accountHandler.GetBalance).Methods("GET")
	router.HandleFunc("/accounts/{account_number}/close", accountHandler.CloseAccount).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/reopen", accountHandler.ReopenAccount).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/rename", accountHandler.RenameHolder).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/upgrade", accountHandler.UpgradeType).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/unlock", accountHandler.Unlock).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/pin", accountHandler.SetPIN).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/pin", accountHandler.ChangePIN).Methods("PUT")
	router.HandleFunc("/accounts/{account_number}/pin/verify", accountHandler.VerifyPIN).Methods("POST")

	// Money movement routes
	router.HandleFunc("/accounts/{account_number}/deposit", transactionHandler.Deposit).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/withdraw", transactionHandler.Withdraw).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/fixed-deposits", transactionHandler.FixedDeposit).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/loans", transactionHandler.LendLoan).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/interest", transactionHandler.SimpleInterest).Methods("GET")
	router.HandleFunc("/accounts/{account_number}/transactions", transactionHandler.History).Methods("GET")
	router.HandleFunc("/accounts/{account_number}/statement", transactionHandler.Statement).Methods("GET")
	router.HandleFunc("/transfers", transactionHandler.Transfer).Methods("POST")

	// Analytics and maintenance routes
	router.HandleFunc("/analytics/active-count", adminHandler.CountActive).Methods("GET")
	router.HandleFunc("/analytics/average-balance", adminHandler.AverageBalance).Methods("GET")
	router.HandleFunc("/analytics/youngest", adminHandler.Youngest).Methods("GET")
	router.HandleFunc("/analytics/oldest", adminHandler.Oldest).Methods("GET")
	router.HandleFunc("/analytics/top", adminHandler.TopByBalance).Methods("GET")
	router.HandleFunc("/export", adminHandler.Export).Methods("GET")
	router.HandleFunc("/import", adminHandler.Import).Methods("POST")
	router.HandleFunc("/flush", adminHandler.Flush).Methods("POST")
	router.HandleFunc("/reconcile", adminHandler.Reconcile).Methods("GET")

	// Health check
	router.HandleFunc("/health", s.health).Methods("GET")

	s.router = router
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg *config.Config) (domain.LedgerStore, error) {
	switch cfg.StorageBackend {
	case config.StorageFile:
		s.logger.Info("Using file storage", "accounts", cfg.AccountsFile(), "transactions", cfg.TransactionsFile())
		store, err := repository.NewFileStore(cfg.AccountsFile(), cfg.TransactionsFile(), s.logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageMemory:
		s.logger.Warn("Using in-memory storage, nothing survives a restart")
		return repository.NewMemoryStore(), nil
	case config.StoragePostgres:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	// Initialize database connection
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	s.logger.Info("Successfully connected to database")

	if err := repository.Migrate(ctx, db, s.logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repository.NewStore(db, s.logger), nil
}

func (s *Server) openUsageTracker(ctx context.Context, cfg *config.Config) (domain.UsageTracker, error) {
	switch cfg.UsageBackend {
	case config.UsageMemory:
		return repository.NewMemoryUsageTracker(), nil
	case config.UsageRedis:
	default:
		return nil, fmt.Errorf("unknown usage backend %q", cfg.UsageBackend)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.redis = client
	s.logger.Info("Successfully connected to redis", "addr", cfg.RedisAddr)
	return repository.NewRedisUsageTracker(client, s.logger), nil
}

// reconcile logs accounts whose balance disagrees with the audit log. It
// never blocks startup.
func (s *Server) reconcile(ctx context.Context) {
	discrepancies, err := s.ledger.Reconcile(ctx)
	if err != nil {
		s.logger.Error("Startup reconciliation failed", "error", err)
		return
	}
	for _, d := range discrepancies {
		s.logger.Warn("Account disagrees with audit log",
			"account_number", d.AccountNumber,
			"balance", d.Balance,
			"logged_balance", d.LoggedBalance)
	}
	if len(discrepancies) == 0 {
		s.logger.Info("Startup reconciliation passed")
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Check backing services in health check
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "redis unavailable"})
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"dirty":     s.ledger.Dirty(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	// Get the actual port being used
	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	// Create HTTP server
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	// Start server in background
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains in-flight requests, saves the ledger and releases backing services.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}

	if s.ledger != nil {
		if _, err := s.ledger.Flush(ctx); err != nil {
			s.logger.Error("Final flush failed", "error", err)
		}
	}

	s.closeClients()
	return shutdownErr
}

func (s *Server) closeClients() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// Ledger exposes the engine for tests and the shutdown path.
func (s *Server) Ledger() *service.Ledger {
	return s.ledger
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	// Initialize logger - use io.Discard for tests to avoid panic
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment - use discard logger
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		// Production environment - use stdout
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	// Start the server and get the actual port
	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return server, port, nil
}
