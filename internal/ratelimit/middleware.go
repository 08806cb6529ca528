package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/edusuite/sage-gateway/internal/auth"
	"github.com/edusuite/sage-gateway/internal/httputil"
	"github.com/edusuite/sage-gateway/internal/telemetry"
)

const (
	defaultRPM = 30

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Middleware returns chi middleware that enforces per-key request rates and
// the daily token budget.
func Middleware(limiter *Limiter, budget *BudgetTracker, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authInfo, ok := auth.AuthFromContext(r.Context())
			if !ok {
				// No auth info — let request pass (auth middleware will catch it)
				next.ServeHTTP(w, r)
				return
			}

			rpm := defaultRPM
			if authInfo.RPMLimit != nil {
				rpm = *authInfo.RPMLimit
			}

			rpmKey := fmt.Sprintf("rpm:%s", authInfo.KeyID)
			result, _ := limiter.Check(r.Context(), rpmKey, int64(rpm), time.Minute)

			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"key_id", authInfo.KeyID,
					"user_id", authInfo.UserID,
					"dimension", "rpm",
					"limit", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("rpm")
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
				return
			}

			if authInfo.DailyTokenBudget != nil {
				budgetResult, _ := budget.CheckDailyTokens(r.Context(), authInfo.UserID, int64(*authInfo.DailyTokenBudget))
				if !budgetResult.Allowed {
					slog.Warn("daily token budget exceeded",
						"request_id", reqID,
						"key_id", authInfo.KeyID,
						"user_id", authInfo.UserID,
						"used_tokens", budgetResult.UsedTokens,
						"limit_tokens", budgetResult.LimitTokens,
					)
					if metrics != nil {
						metrics.RecordRateLimitHit("token_budget")
					}
					httputil.WriteBudgetExceededError(w, reqID,
						fmt.Sprintf("Daily token budget exceeded: used %d of %d tokens", budgetResult.UsedTokens, budgetResult.LimitTokens))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
