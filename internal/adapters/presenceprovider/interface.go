package presenceprovider

import (
	"context"
)

// PresenceTypeInGame is the userPresenceType code for a user who is in a
// running game. Any other code is treated as offline.
const PresenceTypeInGame = 1

// Snapshot is a single presence entry as reported by the presence API. The
// pointer fields may all be nil: the upstream legitimately omits place and
// instance identifiers even for in-game users.
type Snapshot struct {
	PresenceType   int
	PlaceID        *int64
	RootPlaceID    *int64
	GameInstanceID *string
	GameID         *string
}

type PresenceProvider interface {
	// Returns the presence snapshot for the given user ID, or nil if the
	// upstream reported no presence data. A nil snapshot is a successful call.
	//
	// Returns domain.ErrTemporarilyUnavailable if the upstream could not be
	// reached or answered with an intermittent error.
	GetPresence(ctx context.Context, userID int64) (*Snapshot, error)
}
