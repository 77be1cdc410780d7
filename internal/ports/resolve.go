package ports

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mvrik/lantern/internal/app"
	"github.com/mvrik/lantern/internal/domain"
	"github.com/mvrik/lantern/internal/logging"
	"github.com/mvrik/lantern/internal/ratelimiting"
	"github.com/mvrik/lantern/internal/reporting"
)

type resolveRequest struct {
	Username *string `json:"username"`
	Mode     string  `json:"mode"`
}

type presenceResponse struct {
	Online     bool    `json:"online"`
	Message    string  `json:"message"`
	Username   string  `json:"username"`
	UserID     int64   `json:"userId"`
	PlaceID    *string `json:"placeId"`
	InstanceID *string `json:"instanceId"`
	Mode       string  `json:"mode"`
}

// Negative resolutions carry no identity fields.
type notFoundResponse struct {
	Online  bool   `json:"online"`
	Message string `json:"message"`
}

func makePresenceResponse(presence domain.Presence) ([]byte, error) {
	if !presence.Found() {
		return json.Marshal(notFoundResponse{
			Online:  presence.Online,
			Message: presence.Message,
		})
	}

	return json.Marshal(presenceResponse{
		Online:     presence.Online,
		Message:    presence.Message,
		Username:   presence.Username,
		UserID:     presence.UserID,
		PlaceID:    presence.PlaceID,
		InstanceID: presence.InstanceID,
		Mode:       presence.Mode,
	})
}

func MakeResolvePresenceHandler(
	resolvePresence app.ResolvePresence,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
		newPortTokenBucket(8, 480),
		ratelimiting.IPKeyFunc,
	)

	middleware := ComposeMiddlewares(
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("resolve"),
		buildMetricsMiddleware("resolve"),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter, onLimitExceeded),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		var request resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeErrorResponse(ctx, w, http.StatusBadRequest, "username required", "")
			logger.Info("Returning response", "statusCode", http.StatusBadRequest, "reason", "invalid request body")
			return
		}

		if request.Username == nil || strings.TrimSpace(*request.Username) == "" {
			writeErrorResponse(ctx, w, http.StatusBadRequest, "username required", "")
			logger.Info("Returning response", "statusCode", http.StatusBadRequest, "reason", "missing username")
			return
		}
		username := strings.TrimSpace(*request.Username)

		ctx = logging.AddMetaToContext(ctx, slog.String("username", username))
		ctx = reporting.AddExtrasToContext(ctx,
			map[string]string{
				"username": username,
			},
		)

		presence, err := resolvePresence(ctx, username, request.Mode)
		if errors.Is(err, domain.ErrTemporarilyUnavailable) {
			writeErrorResponse(ctx, w, http.StatusBadGateway, "Failed to contact Roblox Users API", "")
			logger.Info("Returning response", "statusCode", http.StatusBadGateway, "reason", "upstream unavailable")
			return
		}
		if err != nil {
			// NOTE: ResolvePresence implementations handle their own error reporting
			writeErrorResponse(ctx, w, http.StatusInternalServerError, "Server error", err.Error())
			logger.Info("Returning response", "statusCode", http.StatusInternalServerError, "reason", "error")
			return
		}

		response, err := makePresenceResponse(presence)
		if err != nil {
			reporting.Report(ctx, fmt.Errorf("failed to create success response: %w", err))
			writeErrorResponse(ctx, w, http.StatusInternalServerError, "Server error", err.Error())
			return
		}

		logger.Info("Returning response", "statusCode", http.StatusOK, "reason", "success", "online", presence.Online)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(response)
	}

	return middleware(handler)
}

func newPortTokenBucket(refillPerSecond ratelimiting.RefillPerSecond, burstSize ratelimiting.BurstSize) ratelimiting.RateLimiter {
	limiter, _ := ratelimiting.NewTokenBucketRateLimiter(refillPerSecond, burstSize)
	return limiter
}

func onLimitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
