package web

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionCookie names the cookie carrying the session token.
const SessionCookie = "kolcrm_session"

// Sessions is an in-process set of login tokens. Tokens expire after ttl of
// inactivity and do not survive a restart.
type Sessions struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions returns an empty session set. A non-positive ttl defaults to
// twelve hours.
func NewSessions(ttl time.Duration, now func() time.Time) *Sessions {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Sessions{tokens: make(map[string]time.Time), ttl: ttl, now: now}
}

// Issue creates a new token.
func (s *Sessions) Issue() string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = s.now().Add(s.ttl)
	s.mu.Unlock()
	return token
}

// Valid reports whether token is live and extends it.
func (s *Sessions) Valid(token string) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[token]
	now := s.now()
	if !ok || !now.Before(exp) {
		delete(s.tokens, token)
		return false
	}
	s.tokens[token] = now.Add(s.ttl)
	return true
}

// Revoke forgets token.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// LoginMiddlewareBuilder guards every route except the ignored paths. An
// empty passcode disables the check.
type LoginMiddlewareBuilder struct {
	passcode string
	sessions *Sessions
	ignored  map[string]struct{}
}

// NewLoginMiddlewareBuilder returns a builder for the given passcode.
func NewLoginMiddlewareBuilder(passcode string, sessions *Sessions) *LoginMiddlewareBuilder {
	return &LoginMiddlewareBuilder{passcode: passcode, sessions: sessions, ignored: make(map[string]struct{})}
}

// IgnorePaths exempts full route paths from the check.
func (b *LoginMiddlewareBuilder) IgnorePaths(paths ...string) *LoginMiddlewareBuilder {
	for _, p := range paths {
		b.ignored[p] = struct{}{}
	}
	return b
}

// Build returns the gin middleware.
func (b *LoginMiddlewareBuilder) Build() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if b.passcode == "" {
			return
		}
		if _, ok := b.ignored[ctx.FullPath()]; ok {
			return
		}
		token, _ := ctx.Cookie(SessionCookie)
		if !b.sessions.Valid(token) {
			fail(ctx, http.StatusUnauthorized, CodeUnauthorized, "请先输入访问密码")
		}
	}
}

func (b *LoginMiddlewareBuilder) check(passcode string) bool {
	return subtle.ConstantTimeCompare([]byte(passcode), []byte(b.passcode)) == 1
}

// MetricsBuilder records request counts and latencies by method, route and
// status code.
type MetricsBuilder struct {
	summaryVec *prometheus.SummaryVec
	counterVec *prometheus.CounterVec
}

// NewMetricsBuilder registers the HTTP collectors with reg, or with the
// default registerer when reg is nil.
func NewMetricsBuilder(reg prometheus.Registerer) *MetricsBuilder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := []string{"method", "path", "status_code"}
	return &MetricsBuilder{
		summaryVec: factory.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: "kolcrm",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Objectives: map[float64]float64{
				0.5:  0.05,
				0.9:  0.01,
				0.99: 0.001,
			},
		}, labels),
		counterVec: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kolcrm",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, labels),
	}
}

// Build returns the gin middleware.
func (m *MetricsBuilder) Build() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(ctx.Writer.Status())
		m.summaryVec.WithLabelValues(ctx.Request.Method, path, status).Observe(time.Since(start).Seconds())
		m.counterVec.WithLabelValues(ctx.Request.Method, path, status).Inc()
	}
}
