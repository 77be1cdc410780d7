package domain

import "time"

// Presence is the resolved online state for a username at the time of the
// query. PlaceID and InstanceID are surfaced as strings regardless of how the
// upstream or the repository represents them, and are nil unless the user is
// online or the values were recovered from a stored location.
type Presence struct {
	Online     bool
	Message    string
	Username   string
	UserID     int64
	PlaceID    *string
	InstanceID *string
	Mode       string
}

// Found reports whether the username resolved to a Roblox user ID.
func (p Presence) Found() bool {
	return p.UserID != 0
}

// UserLocation is the stored last-known location for a username. PlaceID,
// InstanceID and LastSeenAt are nil until the user has been seen online.
type UserLocation struct {
	Username   string
	UserID     int64
	PlaceID    *string
	InstanceID *string
	LastSeenAt *time.Time
}
