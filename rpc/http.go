package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"giftchain/core"
	"giftchain/core/events"
	"giftchain/observability"
	"giftchain/observability/logging"
	"giftchain/storage/eventlog"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

// Config tunes the RPC server.
type Config struct {
	MaxBodyBytes      int64
	RateLimitPerSec   float64
	RateLimitBurst    int
	TrustedProxies    []string
	JWTSecret         string
	JWTIssuer         string
	JWTAudience       string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

type Server struct {
	node    *core.Node
	journal *eventlog.Store
	feed    *events.Feed
	cfg     Config
	logger  *slog.Logger

	limiter *clientLimiter
	auth    *operatorAuth
	methods map[string]method

	mu     sync.Mutex
	server *http.Server
}

type handlerFunc func(r *http.Request, req *RPCRequest) (interface{}, *RPCError)

type method struct {
	module  string
	handler handlerFunc
	// operator methods require a bearer JWT.
	operator bool
}

// NewServer builds the JSON-RPC server. journal and feed may be nil, in which
// case event queries and streaming report the service as unavailable.
func NewServer(node *core.Node, journal *eventlog.Store, feed *events.Feed, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	s := &Server{
		node:    node,
		journal: journal,
		feed:    feed,
		cfg:     cfg,
		logger:  logger.With("component", "rpc"),
		limiter: newClientLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst, cfg.TrustedProxies),
		auth:    newOperatorAuth(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
	}
	s.methods = map[string]method{
		"giftcard_create":       {module: "giftcard", handler: s.handleGiftCardCreate},
		"giftcard_setAllowList": {module: "giftcard", handler: s.handleGiftCardSetAllowList},
		"giftcard_redeem":       {module: "giftcard", handler: s.handleGiftCardRedeem},
		"giftcard_refund":       {module: "giftcard", handler: s.handleGiftCardRefund},
		"giftcard_delete":       {module: "giftcard", handler: s.handleGiftCardDelete},
		"giftcard_get":          {module: "giftcard", handler: s.handleGiftCardGet},
		"giftcard_listByOwner":  {module: "giftcard", handler: s.handleGiftCardListByOwner},
		"giftcard_listEvents":   {module: "giftcard", handler: s.handleGiftCardListEvents},
		"giftcard_getNonce":     {module: "giftcard", handler: s.handleGiftCardGetNonce},
		"bank_getBalance":       {module: "bank", handler: s.handleBankGetBalance},
		"bank_listAssets":       {module: "bank", handler: s.handleBankListAssets},
		"faucet_request":        {module: "faucet", handler: s.handleFaucetRequest, operator: true},
		"net_info":              {module: "net", handler: s.handleNetInfo},
	}
	return s
}

// Handler returns the instrumented HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(limited chi.Router) {
		limited.Use(s.rateLimit)
		limited.Post("/", s.handle)
		limited.Get("/ws/events", s.handleEventStream)
	})
	return otelhttp.NewHandler(r, "giftd.rpc")
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

func newError(status, code int, message string, data interface{}) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data, status: status}
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return newError(http.StatusBadRequest, codeInvalidParams, "invalid_params", fmt.Sprintf(format, args...))
}

func writeError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	status := rpcErr.status
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// decodeParams unmarshals the single parameter object of req into dst.
func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidParams("%v", err)
	}
	return nil
}

// handle is the JSON-RPC entry point.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, nil, newError(status, codeInvalidRequest, message, err.Error()))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, nil, newError(http.StatusBadRequest, codeInvalidRequest, "request body required", nil))
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, nil, newError(http.StatusBadRequest, codeParseError, "invalid JSON payload", err.Error()))
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, newError(http.StatusBadRequest, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC))
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, req.ID, newError(http.StatusBadRequest, codeInvalidRequest, "method required", nil))
		return
	}

	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, req.ID, newError(http.StatusNotFound, codeMethodNotFound, "method not found", req.Method))
		return
	}

	start := time.Now()
	result, rpcErr := s.invoke(r, req, m)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	observability.ModuleMetrics().Observe(m.module, req.Method, code, time.Since(start))

	if rpcErr != nil {
		s.logger.Debug("rpc request failed",
			"method", req.Method,
			"requestId", requestIDFrom(r.Context()),
			"code", rpcErr.Code,
			"message", rpcErr.Message)
		writeError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) invoke(r *http.Request, req *RPCRequest, m method) (interface{}, *RPCError) {
	if m.operator {
		if authErr := s.auth.verify(r); authErr != nil {
			s.logger.Warn("operator call rejected",
				slog.String("method", req.Method),
				slog.String("remote", r.RemoteAddr),
				logging.Field("authorization", r.Header.Get("Authorization")))
			return nil, authErr
		}
	}
	if s.node == nil {
		return nil, newError(http.StatusServiceUnavailable, codeServerError, "unavailable", "node not running")
	}
	return m.handler(r, req)
}
