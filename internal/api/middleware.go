package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	headerTenant = "X-Tenant-ID"
	headerUser   = "X-User-ID"
)

type identityKey struct{}

// Identity is the caller a request acts for.
type Identity struct {
	TenantID string
	UserID   string
}

// IdentityFrom returns the identity stored by RequireIdentity.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

func tenant(r *http.Request) string { return IdentityFrom(r.Context()).TenantID }

func user(r *http.Request) string { return IdentityFrom(r.Context()).UserID }

// RequireIdentity rejects requests without tenant and user headers. It
// stands in for an authentication layer sitting in front of the service.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{TenantID: r.Header.Get(headerTenant), UserID: r.Header.Get(headerUser)}
		if id.TenantID == "" || id.UserID == "" {
			writeFailure(w, http.StatusUnauthorized, "unauthorized", "missing tenant or user identity", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// TenantLimiter is a per-tenant token bucket. Idle tenants are evicted.
type TenantLimiter struct {
	perMin   int
	limiters *gocache.Cache
}

// NewTenantLimiter allows perMin requests per minute per tenant with a
// burst of the same size. perMin <= 0 disables limiting.
func NewTenantLimiter(perMin int) *TenantLimiter {
	return &TenantLimiter{
		perMin:   perMin,
		limiters: gocache.New(10*time.Minute, 5*time.Minute),
	}
}

func (l *TenantLimiter) limiter(tenantID string) *rate.Limiter {
	if v, ok := l.limiters.Get(tenantID); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)
	// Add fails when a concurrent request stored one first.
	if err := l.limiters.Add(tenantID, lim, gocache.DefaultExpiration); err != nil {
		if v, ok := l.limiters.Get(tenantID); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Allow reports whether the tenant may proceed now.
func (l *TenantLimiter) Allow(tenantID string) bool {
	if l == nil || l.perMin <= 0 {
		return true
	}
	lim := l.limiter(tenantID)
	l.limiters.SetDefault(tenantID, lim)
	return lim.Allow()
}

// Limit wraps next with the tenant limit.
func (l *TenantLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(tenant(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(60/max(l.perMin, 1)+1))
			writeFailure(w, http.StatusTooManyRequests, "rate_limited", "too many uploads, try again shortly", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
