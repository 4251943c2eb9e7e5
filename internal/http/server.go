// Package http serves the ledger engine as a JSON API. The caller is
// identified by the X-Owner-ID header; authentication in front of it is
// out of scope here.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"stash/internal/cache"
	"stash/internal/core"
	"stash/internal/ledger"
)

// SnapshotStore is the read surface the API needs beyond the services:
// summaries, change streams, and notifications.
type SnapshotStore interface {
	OwnerSnapshot(ctx context.Context, ownerID string) (core.OwnerSnapshot, error)
	Subscribe(ctx context.Context, ownerID string) <-chan core.OwnerSnapshot
	ListNotifications(ctx context.Context, ownerID string, limit int) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, ownerID string, id int64) error
}

type Server struct {
	http.Server

	accounts     *ledger.AccountService
	transactions *ledger.TransactionService
	goals        *ledger.GoalService
	store        SnapshotStore

	rateLimiter  *rateLimiter
	summaryCache *cache.LRUCache[core.OwnerSnapshot]
	shutdownOnce sync.Once
}

func NewServer(addr string, accounts *ledger.AccountService, transactions *ledger.TransactionService, goals *ledger.GoalService, store SnapshotStore) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		accounts:     accounts,
		transactions: transactions,
		goals:        goals,
		store:        store,
		rateLimiter:  newRateLimiter(),
		summaryCache: cache.NewLRUCache[core.OwnerSnapshot](500, 30*time.Second),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /v1/accounts", s.withMiddleware(s.handleCreateAccount))
	mux.HandleFunc("GET /v1/accounts", s.withMiddleware(s.handleListAccounts))
	mux.HandleFunc("GET /v1/accounts/{id}", s.withMiddleware(s.handleGetAccount))
	mux.HandleFunc("DELETE /v1/accounts/{id}", s.withMiddleware(s.handleDeactivateAccount))

	mux.HandleFunc("POST /v1/transactions", s.withMiddleware(s.handleCreateTransaction))
	mux.HandleFunc("GET /v1/transactions", s.withMiddleware(s.handleListTransactions))
	mux.HandleFunc("GET /v1/transactions/{id}", s.withMiddleware(s.handleGetTransaction))
	mux.HandleFunc("PATCH /v1/transactions/{id}", s.withMiddleware(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /v1/transactions/{id}", s.withMiddleware(s.handleDeleteTransaction))

	mux.HandleFunc("POST /v1/goals", s.withMiddleware(s.handleCreateGoal))
	mux.HandleFunc("GET /v1/goals", s.withMiddleware(s.handleListGoals))
	mux.HandleFunc("GET /v1/goals/{id}", s.withMiddleware(s.handleGetGoal))
	mux.HandleFunc("DELETE /v1/goals/{id}", s.withMiddleware(s.handleDeactivateGoal))
	mux.HandleFunc("POST /v1/goals/{id}/pay", s.withMiddleware(s.handleGoalPay))
	mux.HandleFunc("POST /v1/goals/{id}/withdraw", s.withMiddleware(s.handleGoalWithdraw))
	mux.HandleFunc("PUT /v1/goals/{id}/autopay", s.withMiddleware(s.handleGoalAutoPay))

	mux.HandleFunc("GET /v1/notifications", s.withMiddleware(s.handleListNotifications))
	mux.HandleFunc("POST /v1/notifications/{id}/read", s.withMiddleware(s.handleMarkNotificationRead))

	mux.HandleFunc("GET /v1/summary", s.withMiddleware(s.handleSummary))
	mux.HandleFunc("GET /v1/stream", s.withMiddleware(s.handleStream))

	return s
}

// Shutdown stops the HTTP server and the rate limiter cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware resolves the owner, adds a request ID, security
// headers, write rate limiting, and request logging.
func (s *Server) withMiddleware(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		ownerID := r.Header.Get("X-Owner-ID")
		if ownerID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing X-Owner-ID header"})
			return
		}

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP,
				"method", r.Method,
				"url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r, ownerID)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"owner_id", ownerID)
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets the stream handler push SSE frames through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// The store is the only hard dependency; one cheap read proves it
	if _, err := s.store.ListNotifications(r.Context(), "readiness-probe", 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store not ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Simple in-memory rate limiter, per client IP
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Up to 60 write requests per minute per client
	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}
