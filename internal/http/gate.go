package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/marcioholm/NorthWay-2.0-sub000/internal/repository"
	"github.com/marcioholm/NorthWay-2.0-sub000/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// TenantID extracts the authenticated tenant id placed by the gate.
func TenantID(r *http.Request) string {
	id, _ := r.Context().Value(tenantIDKey).(string)
	return id
}

// AccessGate blocks requests from tenants whose subscription state forbids
// platform use. Webhooks, the OAuth callback, cron triggers and the
// configured recovery paths bypass it; everything else requires the
// X-Tenant-ID header and a passing lifecycle check.
type AccessGate struct {
	tenants       repository.TenantsRepository
	recoveryPaths []string
	logger        *zap.Logger
}

func NewAccessGate(tenants repository.TenantsRepository, recoveryPaths []string, logger *zap.Logger) *AccessGate {
	return &AccessGate{
		tenants:       tenants,
		recoveryPaths: recoveryPaths,
		logger:        logger,
	}
}

func (g *AccessGate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if service.GateExemptPath(r.URL.Path, g.recoveryPaths) {
			next.ServeHTTP(w, r)
			return
		}

		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			writeJSON(w, http.StatusUnauthorized, Fail("missing X-Tenant-ID header"))
			return
		}

		tenant, err := g.tenants.GetTenant(r.Context(), tenantID)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, Fail("unknown tenant"))
			return
		}

		decision := service.EvaluateGate(tenant, time.Now())
		if !decision.Allowed {
			g.logger.Info("request blocked by access gate",
				zap.String("tenant_id", tenantID),
				zap.String("reason", decision.Reason),
				zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusPaymentRequired, Result[map[string]string]{
				Code:    ResultError,
				Type:    "error",
				Message: "access blocked",
				Result:  map[string]string{"reason": decision.Reason},
			})
			return
		}

		ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
