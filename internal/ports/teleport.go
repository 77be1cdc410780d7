package ports

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mvrik/lantern/internal/app"
	"github.com/mvrik/lantern/internal/domain"
	"github.com/mvrik/lantern/internal/logging"
	"github.com/mvrik/lantern/internal/ratelimiting"
	"github.com/mvrik/lantern/internal/reporting"
)

type teleportRequest struct {
	Username   *string `json:"username"`
	PlaceID    *string `json:"placeId"`
	InstanceID *string `json:"instanceId"`
}

func MakeTeleportHandler(
	teleportUser app.TeleportUser,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
		newPortTokenBucket(2, 120),
		ratelimiting.IPKeyFunc,
	)

	middleware := ComposeMiddlewares(
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("teleport"),
		buildMetricsMiddleware("teleport"),
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter, onLimitExceeded),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		var request teleportRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeErrorResponse(ctx, w, http.StatusBadRequest, "username, placeId and instanceId required", "")
			logger.Info("Returning response", "statusCode", http.StatusBadRequest, "reason", "invalid request body")
			return
		}

		if request.Username == nil || strings.TrimSpace(*request.Username) == "" ||
			request.PlaceID == nil || request.InstanceID == nil {
			writeErrorResponse(ctx, w, http.StatusBadRequest, "username, placeId and instanceId required", "")
			logger.Info("Returning response", "statusCode", http.StatusBadRequest, "reason", "missing fields")
			return
		}
		username := strings.TrimSpace(*request.Username)

		ctx = logging.AddMetaToContext(ctx, slog.String("username", username))
		ctx = reporting.AddExtrasToContext(ctx,
			map[string]string{
				"username": username,
			},
		)

		err := teleportUser(ctx, username, *request.PlaceID, *request.InstanceID)
		if errors.Is(err, domain.ErrUserNotFound) {
			writeErrorResponse(ctx, w, http.StatusNotFound, "User not found", "")
			logger.Info("Returning response", "statusCode", http.StatusNotFound, "reason", "unknown username")
			return
		}
		if err != nil {
			// NOTE: TeleportUser implementations handle their own error reporting
			writeErrorResponse(ctx, w, http.StatusInternalServerError, "Server error", err.Error())
			logger.Info("Returning response", "statusCode", http.StatusInternalServerError, "reason", "error")
			return
		}

		logger.Info("Returning response", "statusCode", http.StatusOK, "reason", "success")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}

	return middleware(handler)
}
