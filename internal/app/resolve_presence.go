package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mvrik/lantern/internal/adapters/cache"
	"github.com/mvrik/lantern/internal/adapters/identityprovider"
	"github.com/mvrik/lantern/internal/adapters/locationrepository"
	"github.com/mvrik/lantern/internal/adapters/presenceprovider"
	"github.com/mvrik/lantern/internal/domain"
	"github.com/mvrik/lantern/internal/logging"
	"github.com/mvrik/lantern/internal/reporting"
)

type ResolvePresence func(ctx context.Context, username string, mode string) (domain.Presence, error)

const defaultMode = "Standard"

func modeOrDefault(mode string) string {
	if mode == "" {
		return defaultMode
	}
	return mode
}

func offlineMessage(username string) string {
	return fmt.Sprintf("%s is offline or presence unavailable.", username)
}

func int64String(value int64) *string {
	s := strconv.FormatInt(value, 10)
	return &s
}

func buildResolvePresenceWithoutCache(
	identity identityprovider.IdentityProvider,
	presence presenceprovider.PresenceProvider,
	repo locationrepository.UserLocationRepository,
	nowFunc func() time.Time,
) func(ctx context.Context, username string, mode string) (domain.Presence, bool, error) {
	return func(ctx context.Context, username string, mode string) (domain.Presence, bool, error) {
		logger := logging.FromContext(ctx)

		stored, storedErr := repo.GetByUsername(ctx, username)
		haveStored := storedErr == nil
		if storedErr != nil && !errors.Is(storedErr, domain.ErrUserNotFound) {
			// A repository read failure is not fatal: resolution can still go
			// through the identity API.
			// NOTE: UserLocationRepository implementations handle their own error reporting
			logger.Error("failed to read stored location", "error", storedErr.Error())
			haveStored = false
		}

		var userID int64
		if haveStored {
			// A stored record saves the identity API call on a cold cache
			userID = stored.UserID
		} else {
			id, err := identity.ResolveUserID(ctx, username)
			if errors.Is(err, domain.ErrUserNotFound) {
				// Definitive negative: cached, never persisted
				return domain.Presence{
					Online:  false,
					Message: "User not found",
				}, true, nil
			}
			if err != nil {
				// Identity resolution is required to do anything at all
				// NOTE: IdentityProvider implementations handle their own error reporting
				return domain.Presence{}, false, fmt.Errorf("could not resolve user id: %w", err)
			}
			userID = id
		}

		snapshot, presenceErr := presence.GetPresence(ctx, userID)
		if presenceErr != nil {
			// Presence is best effort: answer from the stored location instead
			// of failing the request. No persistence mutation, and the result
			// is not cached since it was produced under an upstream failure.
			logger.Error("failed to get presence, falling back to stored location", "error", presenceErr.Error())

			degraded := domain.Presence{
				Online:   false,
				Message:  offlineMessage(username),
				Username: username,
				UserID:   userID,
				Mode:     modeOrDefault(mode),
			}
			if haveStored {
				degraded.PlaceID = stored.PlaceID
				degraded.InstanceID = stored.InstanceID
			}
			return degraded, false, nil
		}

		online := snapshot != nil && snapshot.PresenceType == presenceprovider.PresenceTypeInGame

		var placeID *string
		var instanceID *string
		if online {
			if snapshot.PlaceID != nil {
				placeID = int64String(*snapshot.PlaceID)
			} else if snapshot.RootPlaceID != nil {
				placeID = int64String(*snapshot.RootPlaceID)
			}

			if snapshot.GameInstanceID != nil {
				instanceID = snapshot.GameInstanceID
			} else {
				instanceID = snapshot.GameID
			}

			// Live data wins field-by-field; stored values only fill gaps
			if haveStored {
				if placeID == nil {
					placeID = stored.PlaceID
				}
				if instanceID == nil {
					instanceID = stored.InstanceID
				}
			}
		}

		// Ignore cancellations from the request context and try to store the data anyway
		// Take a maximum of 1 second to not block the request for too long
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 1*time.Second)
		defer cancel()

		var storeErr error
		if online {
			storeErr = repo.StoreLocation(storeCtx, domain.UserLocation{
				Username:   username,
				UserID:     userID,
				PlaceID:    placeID,
				InstanceID: instanceID,
			}, nowFunc())
		} else {
			storeErr = repo.StoreUserID(storeCtx, username, userID)
		}
		if storeErr != nil {
			// NOTE: UserLocationRepository implementations handle their own error reporting
			logger.Error("failed to store user location", "error", storeErr.Error())

			// NOTE: We still return the result to fulfill the request even though storing failed
		}

		result := domain.Presence{
			Online:     online,
			Username:   username,
			UserID:     userID,
			PlaceID:    placeID,
			InstanceID: instanceID,
			Mode:       modeOrDefault(mode),
		}
		if online {
			result.Message = "User is online"
		} else {
			result.Message = offlineMessage(username)
		}

		return result, true, nil
	}
}

func BuildResolvePresenceWithCache(
	presenceCache cache.Cache[domain.Presence],
	identity identityprovider.IdentityProvider,
	presence presenceprovider.PresenceProvider,
	repo locationrepository.UserLocationRepository,
	nowFunc func() time.Time,
) ResolvePresence {
	resolvePresenceWithoutCache := buildResolvePresenceWithoutCache(identity, presence, repo, nowFunc)

	return func(ctx context.Context, username string, mode string) (domain.Presence, error) {
		username = strings.TrimSpace(username)

		usernameLength := len(username)
		if usernameLength == 0 || usernameLength > 100 {
			err := fmt.Errorf("invalid username length")
			reporting.Report(ctx, err, map[string]string{
				"username": username,
				"length":   strconv.Itoa(usernameLength),
			})
			return domain.Presence{}, err
		}

		result, err := cache.GetOrCreate(ctx, presenceCache, username, func() (domain.Presence, bool, error) {
			return resolvePresenceWithoutCache(ctx, username, mode)
		})
		if err != nil {
			// NOTE: GetOrCreate only returns an error if create() fails.
			// resolvePresenceWithoutCache handles its own error reporting
			return domain.Presence{}, fmt.Errorf("failed to cache.GetOrCreate presence for username: %w", err)
		}

		return result, nil
	}
}
