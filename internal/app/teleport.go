package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mvrik/lantern/internal/adapters/locationrepository"
	"github.com/mvrik/lantern/internal/domain"
	"github.com/mvrik/lantern/internal/reporting"
)

type TeleportUser func(ctx context.Context, username string, placeID string, instanceID string) error

func BuildTeleportUser(repo locationrepository.UserLocationRepository) TeleportUser {
	return func(ctx context.Context, username string, placeID string, instanceID string) error {
		username = strings.TrimSpace(username)

		usernameLength := len(username)
		if usernameLength == 0 || usernameLength > 100 {
			err := fmt.Errorf("invalid username length")
			reporting.Report(ctx, err, map[string]string{
				"username": username,
				"length":   strconv.Itoa(usernameLength),
			})
			return err
		}

		err := repo.UpdateLocation(ctx, username, placeID, instanceID)
		if errors.Is(err, domain.ErrUserNotFound) {
			// Pass through ErrUserNotFound to the caller
			return err
		}
		if err != nil {
			// NOTE: UserLocationRepository implementations handle their own error reporting
			return fmt.Errorf("could not update stored location: %w", err)
		}

		return nil
	}
}
