package rpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"giftchain/observability"
)

type contextKey string

const requestIDContextKey contextKey = "rpc.requestID"

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an identifier, reusing a well-formed one
// supplied by the client.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(s.limiter.clientIP(r)) {
			observability.ModuleMetrics().RecordThrottle("rate_limit")
			w.Header().Set("Content-Type", "application/json")
			writeError(w, nil, newError(http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	perSec  rate.Limit
	burst   int
	trusted []*net.IPNet

	mu       sync.Mutex
	visitors map[string]*limiterEntry
	lastGC   time.Time
	now      func() time.Time
}

func newClientLimiter(perSec float64, burst int, trustedProxies []string) *clientLimiter {
	l := &clientLimiter{
		perSec:   rate.Limit(perSec),
		burst:    burst,
		visitors: make(map[string]*limiterEntry),
		now:      time.Now,
	}
	if l.burst <= 0 {
		l.burst = 1
	}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			if ip := net.ParseIP(raw); ip != nil && ip.To4() != nil {
				raw += "/32"
			} else {
				raw += "/128"
			}
		}
		if _, network, err := net.ParseCIDR(raw); err == nil {
			l.trusted = append(l.trusted, network)
		}
	}
	return l
}

func (l *clientLimiter) allow(client string) bool {
	if l.perSec <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastGC) > limiterIdleTTL {
		for key, entry := range l.visitors {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(l.visitors, key)
			}
		}
		l.lastGC = now
	}
	entry, ok := l.visitors[client]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.visitors[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// clientIP resolves the caller address. Forwarding headers are honoured only
// when the direct peer is a trusted proxy.
func (l *clientLimiter) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil || !l.isTrusted(peer) {
		return host
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if real := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); real != nil {
		return real.String()
	}
	return host
}

func (l *clientLimiter) isTrusted(ip net.IP) bool {
	for _, network := range l.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// operatorAuth validates HS256 bearer tokens for operator-only methods.
type operatorAuth struct {
	secret   []byte
	issuer   string
	audience string
}

func newOperatorAuth(secret, issuer, audience string) *operatorAuth {
	return &operatorAuth{
		secret:   []byte(strings.TrimSpace(secret)),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}
}

func (a *operatorAuth) verify(r *http.Request) *RPCError {
	if len(a.secret) == 0 {
		return newError(http.StatusUnauthorized, codeUnauthorized, "RPC authentication not configured", nil)
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return newError(http.StatusUnauthorized, codeUnauthorized, "missing Authorization header", nil)
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return newError(http.StatusUnauthorized, codeUnauthorized, "Authorization header must use Bearer scheme", nil)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return newError(http.StatusUnauthorized, codeUnauthorized, "missing bearer token", nil)
	}
	if err := a.parse(token); err != nil {
		return newError(http.StatusUnauthorized, codeUnauthorized, "invalid RPC credentials", err.Error())
	}
	return nil
}

func (a *operatorAuth) parse(raw string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}
