package identityprovider

import (
	"context"
)

type IdentityProvider interface {
	// Returns the numeric user ID for the given username.
	//
	// Returns domain.ErrUserNotFound if the username does not exist. This is a
	// successful upstream call with an empty result set, not a failure.
	// Returns domain.ErrTemporarilyUnavailable if the upstream could not be
	// reached or answered with an intermittent error. The call may be retried later.
	ResolveUserID(ctx context.Context, username string) (int64, error)
}
