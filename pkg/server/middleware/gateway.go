package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbor-hq/gatekeeper/pkg/admission"
	"arbor-hq/gatekeeper/pkg/limits"
	"arbor-hq/gatekeeper/pkg/telemetry/logging"
	"arbor-hq/gatekeeper/pkg/telemetry/metrics"
)

// Request headers consumed by the gateway.
const (
	HeaderAPIKey   = "X-API-Key"
	HeaderUserID   = "X-User-ID"
	HeaderTier     = "X-Subscription-Tier"
	HeaderPriority = "X-Request-Priority"
)

// defaultPriority applies when the client sends no priority hint.
const defaultPriority = 5

// Reason codes carried in rejection bodies. Clients branch on these, so
// they are part of the API surface.
const (
	reasonRateLimited  = "rate_limit_exceeded"
	reasonAuthLimited  = "auth_rate_limit_exceeded"
	reasonRepoBlocked  = "repository_operation_blocked"
	reasonRepoExceeded = "repository_quota_exceeded"
)

// Gateway is the admission and rate-limit checkpoint every proxied request
// passes through. Checks run cheapest-rejection-first: admission control
// (process-local, no I/O), then the tiered limiter, then the repository
// volume layer. A request pays for a counter round trip only if the node
// agreed to take it at all.
type Gateway struct {
	limiter     *limits.Limiter
	repoLimiter *limits.RepositoryLimiter
	controller  *admission.Controller
	tracker     *InFlightTracker
	collector   *metrics.Collector
	logger      *slog.Logger
}

// GatewayConfig wires the gateway's collaborators.
type GatewayConfig struct {
	// Limiter applies the tiered per-identity budgets. Required.
	Limiter *limits.Limiter

	// RepoLimiter applies the shared-repository volume layer. Required.
	RepoLimiter *limits.RepositoryLimiter

	// Controller makes the admission decision. Required.
	Controller *admission.Controller

	// Tracker supplies queue depth and active work. Required.
	Tracker *InFlightTracker

	// Collector records decision metrics. Optional.
	Collector *metrics.Collector

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewGateway creates the checkpoint middleware.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gateway{
		limiter:     cfg.Limiter,
		repoLimiter: cfg.RepoLimiter,
		controller:  cfg.Controller,
		tracker:     cfg.Tracker,
		collector:   cfg.Collector,
		logger:      cfg.Logger.With("component", "gateway"),
	}
}

// Wrap returns a handler that runs the full checkpoint before next.
func (g *Gateway) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := g.identify(r)
		priority := parsePriority(r.Header.Get(HeaderPriority))

		out := g.controller.CheckAdmission(
			g.tracker.QueueDepth(),
			g.tracker.MaxQueueSize(),
			g.tracker.ActiveWork(),
			priority,
		)
		if g.collector != nil {
			g.collector.RecordAdmission(string(out.Decision))
		}
		if !out.Accepted() {
			g.logger.Warn("request rejected at admission",
				"request_id", logging.RequestID(r.Context()),
				"decision", string(out.Decision),
				"priority", priority,
				"path", r.URL.Path,
			)
			writeRejection(w, http.StatusServiceUnavailable, string(out.Decision), out.Reason, 0)
			return
		}

		if !limits.SubscriptionLimited(r.URL.Path) {
			if strings.HasPrefix(r.URL.Path, "/api/auth") {
				g.checkAuth(w, r, id, next)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		category := limits.Categorize(r.URL.Path, r.Method)
		res, err := g.limiter.Check(r.Context(), id, category)
		if err != nil {
			g.logger.Error("rate limit resolution failed",
				"request_id", logging.RequestID(r.Context()),
				"category", string(category),
				"error", err,
			)
			writeRejection(w, http.StatusInternalServerError, "internal_error",
				"rate limit configuration error", 0)
			return
		}
		if g.collector != nil {
			g.collector.RecordRateLimit(string(res.Tier), string(res.Category), outcomeLabel(res.Allowed))
			if res.Degraded {
				g.collector.RecordStoreError()
			}
		}

		setLimitHeaders(w, res)
		if !res.Allowed {
			writeRejection(w, http.StatusTooManyRequests, reasonRateLimited,
				"rate limit exceeded for "+string(category), res.RetryAfter)
			return
		}

		if repo := limits.SharedRepository(r.URL.Path); repo != "" && !g.repoLimiter.Bypassed(r.URL.Path) {
			op := limits.ClassifyOperation(r.URL.Path, r.Method)
			rres, err := g.repoLimiter.Check(r.Context(), repo, op)
			if err != nil {
				g.logger.Error("repository limit check failed",
					"request_id", logging.RequestID(r.Context()),
					"repository", repo,
					"error", err,
				)
				writeRejection(w, http.StatusInternalServerError, "internal_error",
					"repository limit configuration error", 0)
				return
			}
			if g.collector != nil {
				g.collector.RecordRepositoryLimit(repo, string(op), outcomeLabel(rres.Allowed))
				if rres.Degraded {
					g.collector.RecordStoreError()
				}
			}

			if rres.Limit > 0 {
				w.Header().Set("X-RateLimit-Repo-Limit", strconv.FormatInt(rres.Limit, 10))
				w.Header().Set("X-RateLimit-Repo-Remaining", strconv.FormatInt(rres.Remaining, 10))
			}
			if !rres.Allowed {
				reason := reasonRepoExceeded
				message := "volume cap exceeded for shared repository " + repo
				if rres.Blocked {
					reason = reasonRepoBlocked
					message = string(op) + " operations are not permitted on shared repository " + repo
				}
				writeRejection(w, http.StatusTooManyRequests, reason, message, rres.RetryAfter)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// checkAuth applies the fixed auth sub-limiter to /api/auth paths, which
// are exempt from the tier budget but not from abuse protection.
func (g *Gateway) checkAuth(w http.ResponseWriter, r *http.Request, id limits.Identity, next http.Handler) {
	res, err := g.limiter.CheckAuth(r.Context(), id)
	if err != nil {
		g.logger.Error("auth limit resolution failed",
			"request_id", logging.RequestID(r.Context()),
			"error", err,
		)
		writeRejection(w, http.StatusInternalServerError, "internal_error",
			"rate limit configuration error", 0)
		return
	}
	if g.collector != nil {
		g.collector.RecordRateLimit(string(res.Tier), string(res.Category), outcomeLabel(res.Allowed))
		if res.Degraded {
			g.collector.RecordStoreError()
		}
	}

	w.Header().Set("X-RateLimit-Auth-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Auth-Remaining", strconv.FormatInt(res.Remaining, 10))
	if !res.Allowed {
		writeRejection(w, http.StatusTooManyRequests, reasonAuthLimited,
			"authentication rate limit exceeded", res.RetryAfter)
		return
	}

	next.ServeHTTP(w, r)
}

// identify extracts the caller identity from the request. Credentialed
// callers may claim a tier; anonymous callers are keyed by client IP and
// any tier claim they carry is ignored downstream.
func (g *Gateway) identify(r *http.Request) limits.Identity {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return limits.Identity{ID: key, Tier: parseTierClaim(r)}
	}
	if uid := r.Header.Get(HeaderUserID); uid != "" {
		return limits.Identity{ID: uid, Tier: parseTierClaim(r)}
	}
	return limits.Identity{ID: clientIP(r), Anonymous: true, Tier: limits.TierFree}
}

func parseTierClaim(r *http.Request) limits.Tier {
	claim := r.Header.Get(HeaderTier)
	if claim == "" {
		return limits.TierFree
	}
	tier, err := limits.ParseTier(claim)
	if err != nil {
		return limits.TierFree
	}
	return tier
}

// clientIP prefers the first X-Forwarded-For hop since the gatekeeper
// normally sits behind a load balancer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parsePriority(s string) int {
	if s == "" {
		return defaultPriority
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return defaultPriority
	}
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

func outcomeLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func setLimitHeaders(w http.ResponseWriter, res limits.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.WindowSeconds, 10))
	h.Set("X-RateLimit-Tier", string(res.Tier))
	h.Set("X-RateLimit-Category", string(res.Category))
}

// writeRejection emits the structured rejection body shared by every deny
// path. retryAfter of zero omits the header.
func writeRejection(w http.ResponseWriter, status int, code, message string, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if retryAfter > 0 {
		body["error"].(map[string]any)["retry_after"] = int64(retryAfter / time.Second)
	}
	_ = json.NewEncoder(w).Encode(body)
}
