package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/digiwin/internal/chain"
	"github.com/MJE43/digiwin/internal/contract/digiwin"
)

// Server handles HTTP requests
type Server struct {
	host           *chain.Host
	accounts       []chain.Account
	addresses      map[string]string
	gameContract   string
	errorHandler   *ErrorHandler
	logger         *log.Logger
	securityLogger *SecurityLogger
	allowedOrigin  string
	requestTimeout time.Duration
	exportPageSize int
	startTime      time.Time
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithLogOutput sends API and security logs to w
func WithLogOutput(w io.Writer) ServerOption {
	return func(s *Server) {
		s.logger = log.New(w, "[API] ", log.LstdFlags|log.Lshortfile)
		s.securityLogger = NewSecurityLogger(w)
	}
}

// WithAccounts sets the named accounts senders may refer to
func WithAccounts(accounts []chain.Account) ServerOption {
	return func(s *Server) { s.accounts = accounts }
}

// WithAllowedOrigin sets the CORS origin
func WithAllowedOrigin(origin string) ServerOption {
	return func(s *Server) { s.allowedOrigin = origin }
}

// WithRequestTimeout bounds each request
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.requestTimeout = d }
}

// NewServer creates a new API server
func NewServer(host *chain.Host, opts ...ServerOption) *Server {
	s := &Server{
		host:           host,
		accounts:       chain.DevnetAccounts(),
		gameContract:   digiwin.Name,
		logger:         log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
		securityLogger: NewSecurityLogger(os.Stdout),
		allowedOrigin:  "*",
		requestTimeout: 60 * time.Second,
		exportPageSize: 1000,
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.addresses = chain.AccountMap(s.accounts)
	s.errorHandler = NewErrorHandler(s.logger, s.securityLogger)
	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.SecurityLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/info", s.handleChainInfo)
		r.Get("/contracts", s.handleListContracts)
		r.Post("/contracts/{contract}/public/{function}", s.handleCallPublic)
		r.Post("/contracts/{contract}/read-only/{function}", s.handleCallReadOnly)
		r.Get("/accounts", s.handleListAccounts)
		r.Get("/accounts/{address}", s.handleGetAccount)
		r.Get("/transactions", s.handleListTransactions)
		r.Get("/transactions.csv", s.handleExportTransactions)
		r.Get("/transactions/{txid}", s.handleGetTransaction)
		r.Get("/games/{id}", s.handleGetGame)
	})

	return r
}

// SecurityLogger exposes the audit logger for startup and shutdown events
func (s *Server) SecurityLogger() *SecurityLogger { return s.securityLogger }

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d error=%v", status, err)
	}
}

// resolveSender maps a devnet account name to its address
func (s *Server) resolveSender(sender string) string {
	if addr, ok := s.addresses[sender]; ok {
		return addr
	}
	return sender
}

func (s *Server) accountName(address string) string {
	for _, a := range s.accounts {
		if a.Address == address {
			return a.Name
		}
	}
	return ""
}
