package locationrepository

import (
	"context"
	"time"

	"github.com/mvrik/lantern/internal/domain"
)

type UserLocationRepository interface {
	// Returns domain.ErrUserNotFound if no record exists for the username.
	GetByUsername(ctx context.Context, username string) (domain.UserLocation, error)

	// StoreUserID upserts only the user ID for the username, creating the
	// record if absent. Location fields are left untouched.
	StoreUserID(ctx context.Context, username string, userID int64) error

	// StoreLocation upserts the full record for location.Username.
	StoreLocation(ctx context.Context, location domain.UserLocation, lastSeenAt time.Time) error

	// UpdateLocation overwrites the location fields of an existing record.
	// Returns domain.ErrUserNotFound if no record exists for the username.
	UpdateLocation(ctx context.Context, username string, placeID string, instanceID string) error
}
