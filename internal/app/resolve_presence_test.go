package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvrik/lantern/internal/adapters/cache"
	"github.com/mvrik/lantern/internal/adapters/presenceprovider"
	"github.com/mvrik/lantern/internal/app"
	"github.com/mvrik/lantern/internal/domain"
)

type mockIdentityProvider struct {
	t *testing.T

	resolveUsername string
	resolveCalled   bool
	resolveUserID   int64
	resolveErr      error
}

func (m *mockIdentityProvider) ResolveUserID(ctx context.Context, username string) (int64, error) {
	m.t.Helper()
	require.Equal(m.t, m.resolveUsername, username)

	require.False(m.t, m.resolveCalled)

	m.resolveCalled = true
	return m.resolveUserID, m.resolveErr
}

type mockPresenceProvider struct {
	t *testing.T

	getPresenceUserID   int64
	getPresenceCalled   bool
	getPresenceSnapshot *presenceprovider.Snapshot
	getPresenceErr      error
}

func (m *mockPresenceProvider) GetPresence(ctx context.Context, userID int64) (*presenceprovider.Snapshot, error) {
	m.t.Helper()
	require.Equal(m.t, m.getPresenceUserID, userID)

	require.False(m.t, m.getPresenceCalled)

	m.getPresenceCalled = true
	return m.getPresenceSnapshot, m.getPresenceErr
}

type mockLocationRepository struct {
	t *testing.T

	getByUsernameUsername string
	getByUsernameCalled   bool
	getByUsernameLocation domain.UserLocation
	getByUsernameErr      error

	storeUserIDUsername string
	storeUserIDUserID   int64
	storeUserIDCalled   bool
	storeUserIDErr      error

	storeLocationLocation   domain.UserLocation
	storeLocationLastSeenAt time.Time
	storeLocationCalled     bool
	storeLocationErr        error

	updateLocationUsername   string
	updateLocationPlaceID    string
	updateLocationInstanceID string
	updateLocationCalled     bool
	updateLocationErr        error
}

func (m *mockLocationRepository) GetByUsername(ctx context.Context, username string) (domain.UserLocation, error) {
	m.t.Helper()
	require.Equal(m.t, m.getByUsernameUsername, username)

	require.False(m.t, m.getByUsernameCalled)

	m.getByUsernameCalled = true
	return m.getByUsernameLocation, m.getByUsernameErr
}

func (m *mockLocationRepository) StoreUserID(ctx context.Context, username string, userID int64) error {
	m.t.Helper()
	require.Equal(m.t, m.storeUserIDUsername, username)
	require.Equal(m.t, m.storeUserIDUserID, userID)

	require.False(m.t, m.storeUserIDCalled)

	m.storeUserIDCalled = true
	return m.storeUserIDErr
}

func (m *mockLocationRepository) StoreLocation(ctx context.Context, location domain.UserLocation, lastSeenAt time.Time) error {
	m.t.Helper()
	require.Equal(m.t, m.storeLocationLocation, location)
	require.WithinDuration(m.t, m.storeLocationLastSeenAt, lastSeenAt, 0)

	require.False(m.t, m.storeLocationCalled)

	m.storeLocationCalled = true
	return m.storeLocationErr
}

func (m *mockLocationRepository) UpdateLocation(ctx context.Context, username string, placeID string, instanceID string) error {
	m.t.Helper()
	require.Equal(m.t, m.updateLocationUsername, username)
	require.Equal(m.t, m.updateLocationPlaceID, placeID)
	require.Equal(m.t, m.updateLocationInstanceID, instanceID)

	require.False(m.t, m.updateLocationCalled)

	m.updateLocationCalled = true
	return m.updateLocationErr
}

func strPtr(s string) *string {
	return &s
}

func int64Ptr(i int64) *int64 {
	return &i
}

func TestBuildResolvePresenceWithCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	nowFunc := func() time.Time {
		return now
	}

	t.Run("online user with live place and instance", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Alice",
			resolveUserID:   123,
		}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 123,
			getPresenceSnapshot: &presenceprovider.Snapshot{
				PresenceType:   presenceprovider.PresenceTypeInGame,
				PlaceID:        int64Ptr(555),
				GameInstanceID: strPtr("abc"),
			},
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Alice",
			getByUsernameErr:      domain.ErrUserNotFound,

			storeLocationLocation: domain.UserLocation{
				Username:   "Alice",
				UserID:     123,
				PlaceID:    strPtr("555"),
				InstanceID: strPtr("abc"),
			},
			storeLocationLastSeenAt: now,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Alice", "")
		require.NoError(t, err)

		require.Equal(t, domain.Presence{
			Online:     true,
			Message:    "User is online",
			Username:   "Alice",
			UserID:     123,
			PlaceID:    strPtr("555"),
			InstanceID: strPtr("abc"),
			Mode:       "Standard",
		}, result)
		assert.True(t, repo.storeLocationCalled)
	})

	t.Run("second resolution within TTL is served from the cache", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Bob",
			resolveUserID:   7,
		}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 7,
			getPresenceSnapshot: &presenceprovider.Snapshot{
				PresenceType: presenceprovider.PresenceTypeInGame,
				PlaceID:      int64Ptr(1),
				GameID:       strPtr("g-1"),
			},
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Bob",
			getByUsernameErr:      domain.ErrUserNotFound,

			storeLocationLocation: domain.UserLocation{
				Username:   "Bob",
				UserID:     7,
				PlaceID:    strPtr("1"),
				InstanceID: strPtr("g-1"),
			},
			storeLocationLastSeenAt: now,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		first, err := resolvePresence(ctx, "Bob", "Standard")
		require.NoError(t, err)

		// The mocks fail on a second call, so a fresh resolution would be caught here
		second, err := resolvePresence(ctx, "Bob", "Standard")
		require.NoError(t, err)

		require.Equal(t, first, second)
	})

	t.Run("stored record skips the identity call", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{t: t}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 42,
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Carol",
			getByUsernameLocation: domain.UserLocation{
				Username: "Carol",
				UserID:   42,
			},

			storeUserIDUsername: "Carol",
			storeUserIDUserID:   42,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Carol", "")
		require.NoError(t, err)

		assert.False(t, identity.resolveCalled)
		assert.False(t, result.Online)
		require.Equal(t, int64(42), result.UserID)
	})

	t.Run("user not found is cached and never persisted", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Nobody",
			resolveErr:      domain.ErrUserNotFound,
		}
		presence := &mockPresenceProvider{t: t}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Nobody",
			getByUsernameErr:      domain.ErrUserNotFound,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Nobody", "")
		require.NoError(t, err)

		require.Equal(t, domain.Presence{
			Online:  false,
			Message: "User not found",
		}, result)
		assert.False(t, presence.getPresenceCalled)
		assert.False(t, repo.storeUserIDCalled)
		assert.False(t, repo.storeLocationCalled)

		// Cached: would fail in the identity mock if resolved again
		repo.getByUsernameCalled = false
		second, err := resolvePresence(ctx, "Nobody", "")
		require.NoError(t, err)
		require.Equal(t, result, second)
	})

	t.Run("identity unavailable fails the request", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Dave",
			resolveErr:      domain.ErrTemporarilyUnavailable,
		}
		presence := &mockPresenceProvider{t: t}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Dave",
			getByUsernameErr:      domain.ErrUserNotFound,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		_, err := resolvePresence(ctx, "Dave", "")
		require.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)
		assert.False(t, presence.getPresenceCalled)
	})

	t.Run("presence failure falls back to the stored location", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{t: t}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 99,
			getPresenceErr:    domain.ErrTemporarilyUnavailable,
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Erin",
			getByUsernameLocation: domain.UserLocation{
				Username:   "Erin",
				UserID:     99,
				PlaceID:    strPtr("777"),
				InstanceID: strPtr("xyz"),
			},
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Erin", "")
		require.NoError(t, err)

		require.Equal(t, domain.Presence{
			Online:     false,
			Message:    "Erin is offline or presence unavailable.",
			Username:   "Erin",
			UserID:     99,
			PlaceID:    strPtr("777"),
			InstanceID: strPtr("xyz"),
			Mode:       "Standard",
		}, result)
		assert.False(t, repo.storeUserIDCalled)
		assert.False(t, repo.storeLocationCalled)
	})

	t.Run("degraded result is not cached", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		makeMocks := func() (*mockPresenceProvider, *mockLocationRepository) {
			presence := &mockPresenceProvider{
				t:                 t,
				getPresenceUserID: 99,
				getPresenceErr:    domain.ErrTemporarilyUnavailable,
			}
			repo := &mockLocationRepository{
				t:                     t,
				getByUsernameUsername: "Frank",
				getByUsernameLocation: domain.UserLocation{
					Username: "Frank",
					UserID:   99,
				},
			}
			return presence, repo
		}

		presence, repo := makeMocks()
		resolvePresence := app.BuildResolvePresenceWithCache(c, &mockIdentityProvider{t: t}, presence, repo, nowFunc)
		_, err := resolvePresence(ctx, "Frank", "")
		require.NoError(t, err)
		assert.True(t, presence.getPresenceCalled)

		// A second resolution through the same cache must hit the upstream again
		presence, repo = makeMocks()
		resolvePresence = app.BuildResolvePresenceWithCache(c, &mockIdentityProvider{t: t}, presence, repo, nowFunc)
		_, err = resolvePresence(ctx, "Frank", "")
		require.NoError(t, err)
		assert.True(t, presence.getPresenceCalled)
	})

	t.Run("offline user upserts the user id only", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Grace",
			resolveUserID:   31,
		}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 31,
			getPresenceSnapshot: &presenceprovider.Snapshot{
				PresenceType: 0,
			},
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Grace",
			getByUsernameErr:      domain.ErrUserNotFound,

			storeUserIDUsername: "Grace",
			storeUserIDUserID:   31,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Grace", "Ranked")
		require.NoError(t, err)

		require.Equal(t, domain.Presence{
			Online:   false,
			Message:  "Grace is offline or presence unavailable.",
			Username: "Grace",
			UserID:   31,
			Mode:     "Ranked",
		}, result)
		assert.True(t, repo.storeUserIDCalled)
		assert.False(t, repo.storeLocationCalled)
	})

	t.Run("live fields win and stored fields fill gaps", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{t: t}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 55,
			getPresenceSnapshot: &presenceprovider.Snapshot{
				PresenceType: presenceprovider.PresenceTypeInGame,
				PlaceID:      int64Ptr(222),
			},
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Heidi",
			getByUsernameLocation: domain.UserLocation{
				Username:   "Heidi",
				UserID:     55,
				PlaceID:    strPtr("111"),
				InstanceID: strPtr("aaa"),
			},

			storeLocationLocation: domain.UserLocation{
				Username:   "Heidi",
				UserID:     55,
				PlaceID:    strPtr("222"),
				InstanceID: strPtr("aaa"),
			},
			storeLocationLastSeenAt: now,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Heidi", "")
		require.NoError(t, err)

		require.Equal(t, strPtr("222"), result.PlaceID)
		require.Equal(t, strPtr("aaa"), result.InstanceID)
		assert.True(t, repo.storeLocationCalled)
	})

	t.Run("root place id is the fallback for a missing place id", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Ivan",
			resolveUserID:   12,
		}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 12,
			getPresenceSnapshot: &presenceprovider.Snapshot{
				PresenceType:   presenceprovider.PresenceTypeInGame,
				RootPlaceID:    int64Ptr(808),
				GameInstanceID: strPtr("inst-1"),
			},
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Ivan",
			getByUsernameErr:      domain.ErrUserNotFound,

			storeLocationLocation: domain.UserLocation{
				Username:   "Ivan",
				UserID:     12,
				PlaceID:    strPtr("808"),
				InstanceID: strPtr("inst-1"),
			},
			storeLocationLastSeenAt: now,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Ivan", "")
		require.NoError(t, err)
		require.Equal(t, strPtr("808"), result.PlaceID)
	})

	t.Run("persistence failure does not fail the request", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Judy",
			resolveUserID:   64,
		}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 64,
			getPresenceSnapshot: &presenceprovider.Snapshot{
				PresenceType:   presenceprovider.PresenceTypeInGame,
				PlaceID:        int64Ptr(3),
				GameInstanceID: strPtr("i"),
			},
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Judy",
			getByUsernameErr:      domain.ErrUserNotFound,

			storeLocationLocation: domain.UserLocation{
				Username:   "Judy",
				UserID:     64,
				PlaceID:    strPtr("3"),
				InstanceID: strPtr("i"),
			},
			storeLocationLastSeenAt: now,
			storeLocationErr:        errors.New("connection reset"),
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Judy", "")
		require.NoError(t, err)
		assert.True(t, result.Online)
	})

	t.Run("repository read failure falls through to the identity call", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Mallory",
			resolveUserID:   5,
		}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 5,
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Mallory",
			getByUsernameErr:      errors.New("connection refused"),

			storeUserIDUsername: "Mallory",
			storeUserIDUserID:   5,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		result, err := resolvePresence(ctx, "Mallory", "")
		require.NoError(t, err)
		assert.True(t, identity.resolveCalled)
		assert.False(t, result.Online)
	})

	t.Run("username is trimmed before resolution and caching", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		identity := &mockIdentityProvider{
			t:               t,
			resolveUsername: "Peggy",
			resolveUserID:   8,
		}
		presence := &mockPresenceProvider{
			t:                 t,
			getPresenceUserID: 8,
		}
		repo := &mockLocationRepository{
			t:                     t,
			getByUsernameUsername: "Peggy",
			getByUsernameErr:      domain.ErrUserNotFound,

			storeUserIDUsername: "Peggy",
			storeUserIDUserID:   8,
		}
		resolvePresence := app.BuildResolvePresenceWithCache(c, identity, presence, repo, nowFunc)

		first, err := resolvePresence(ctx, "  Peggy  ", "")
		require.NoError(t, err)
		require.Equal(t, "Peggy", first.Username)

		second, err := resolvePresence(ctx, "Peggy", "")
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("invalid username length", func(t *testing.T) {
		t.Parallel()

		c := cache.NewBasicCache[domain.Presence]()
		resolvePresence := app.BuildResolvePresenceWithCache(
			c,
			&mockIdentityProvider{t: t},
			&mockPresenceProvider{t: t},
			&mockLocationRepository{t: t},
			nowFunc,
		)

		_, err := resolvePresence(ctx, "   ", "")
		require.Error(t, err)
	})
}
