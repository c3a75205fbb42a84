// Package api exposes the aggregator over HTTP and streams spread updates
// over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/metrics"
	"github.com/StrathCole/pricespread/pkg/server/aggregator"
	"github.com/StrathCole/pricespread/pkg/server/cache"
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

// DefaultRequestTimeout bounds a single API request.
const DefaultRequestTimeout = 20 * time.Second

// Server represents the HTTP API server.
type Server struct {
	addr           string
	svc            aggregator.Service
	cache          *cache.Cache
	requestTimeout time.Duration
	server         *http.Server
	logger         *logging.Logger
	wsServer       *WebSocketServer // Optional, mounted on /ws
}

// SymbolInfo lists the enabled exchanges that carry a symbol.
type SymbolInfo struct {
	Symbol    string               `json:"symbol"`
	Exchanges []sources.ExchangeID `json:"exchanges"`
}

// SymbolsResponse is the body of /v1/symbols.
type SymbolsResponse struct {
	Symbols   []SymbolInfo         `json:"symbols"`
	Exchanges []sources.ExchangeID `json:"exchanges"`
}

// NewServer creates a new HTTP API server. c may be nil.
func NewServer(addr string, svc aggregator.Service, c *cache.Cache, requestTimeout time.Duration, logger *logging.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		addr:           addr,
		svc:            svc,
		cache:          c,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// SetWebSocketServer mounts the stream on /ws.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/symbols", s.handleSymbols)
	mux.HandleFunc("GET /v1/price/{symbol}", s.handlePrice)
	mux.HandleFunc("GET /api/crypto/{symbol}", s.handlePrice) // Compatibility with the original page
	mux.HandleFunc("GET /v1/spread/{symbol}", s.handleSpread)
	if s.wsServer != nil {
		mux.Handle("GET /ws", s.wsServer)
	}
	return mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.requestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSymbols(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/v1/symbols", "200", time.Since(start))
	}()

	enabled := make(map[sources.ExchangeID]bool)
	for _, id := range s.svc.Exchanges() {
		enabled[id] = true
	}

	catalog := s.svc.Catalog()
	resp := SymbolsResponse{Exchanges: s.svc.Exchanges()}
	for _, sym := range catalog.SupportedSymbols() {
		info := SymbolInfo{Symbol: sym, Exchanges: []sources.ExchangeID{}}
		for _, id := range catalog.ExchangesFor(sym) {
			if enabled[id] {
				info.Exchanges = append(info.Exchanges, id)
			}
		}
		resp.Symbols = append(resp.Symbols, info)
	}

	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(r.Pattern, strconv.Itoa(status), time.Since(start))
	}()

	symbol := sources.NormalizeSymbol(r.PathValue("symbol"))
	source := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("source")))
	if source == "" {
		source = aggregator.SourceAuto
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	quote, err := cache.Fetch(ctx, s.cache, "price:"+symbol+":"+source, func(ctx context.Context) (sources.PriceQuote, error) {
		return s.svc.GetPrice(ctx, symbol, source)
	})
	if err != nil {
		status = s.sendError(w, err, "symbol", symbol, "source", source)
		return
	}

	s.sendJSON(w, status, quote)
}

func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(r.Pattern, strconv.Itoa(status), time.Since(start))
	}()

	symbol := sources.NormalizeSymbol(r.PathValue("symbol"))

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	summary, err := cache.Fetch(ctx, s.cache, "spread:"+symbol, func(ctx context.Context) (*aggregator.SpreadSummary, error) {
		return s.svc.GetSpread(ctx, symbol)
	})
	if err != nil {
		status = s.sendError(w, err, "symbol", symbol)
		return
	}

	s.sendJSON(w, status, summary)
}

// sendError writes the mapped error response and returns its status.
func (s *Server) sendError(w http.ResponseWriter, err error, fields ...interface{}) int {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("Request failed", append(fields, "code", code, "error", err)...)
	} else {
		s.logger.Debug("Request rejected", append(fields, "code", code, "error", err)...)
	}
	s.sendJSON(w, status, ErrorResponse{Code: code, Message: err.Error()})
	return status
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
