package locationrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mvrik/lantern/internal/domain"
	"github.com/mvrik/lantern/internal/reporting"
)

type Postgres struct {
	db     *sqlx.DB
	schema string
	tracer trace.Tracer
}

func NewPostgres(db *sqlx.DB, schema string) *Postgres {
	tracer := otel.Tracer("lantern/locationrepository/postgres")
	return &Postgres{
		db:     db,
		schema: schema,
		tracer: tracer,
	}
}

type dbUserLocation struct {
	Username   string         `db:"username"`
	UserID     int64          `db:"user_id"`
	PlaceID    sql.NullString `db:"place_id"`
	InstanceID sql.NullString `db:"instance_id"`
	LastSeenAt sql.NullTime   `db:"last_seen_at"`
}

func (p *Postgres) GetByUsername(ctx context.Context, username string) (domain.UserLocation, error) {
	ctx, span := p.tracer.Start(ctx, "Postgres.GetByUsername")
	defer span.End()

	var location dbUserLocation
	err := p.db.QueryRowxContext(
		ctx,
		fmt.Sprintf(`SELECT username, user_id, place_id, instance_id, last_seen_at
		FROM %s.user_locations
		WHERE username = $1`,
			pq.QuoteIdentifier(p.schema)),
		username,
	).StructScan(&location)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserLocation{}, domain.ErrUserNotFound
	}
	if err != nil {
		err := fmt.Errorf("failed to get user location: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"username": username,
		})
		return domain.UserLocation{}, err
	}

	return locationFromDB(location), nil
}

func (p *Postgres) StoreUserID(ctx context.Context, username string, userID int64) error {
	ctx, span := p.tracer.Start(ctx, "Postgres.StoreUserID")
	defer span.End()

	_, err := p.db.ExecContext(
		ctx,
		fmt.Sprintf(`INSERT INTO %s.user_locations
		(username, user_id)
		VALUES ($1, $2)
		ON CONFLICT (username)
		DO UPDATE SET user_id = EXCLUDED.user_id`,
			pq.QuoteIdentifier(p.schema)),
		username,
		userID,
	)
	if err != nil {
		err := fmt.Errorf("failed to upsert user id: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"username": username,
		})
		return err
	}

	return nil
}

func (p *Postgres) StoreLocation(ctx context.Context, location domain.UserLocation, lastSeenAt time.Time) error {
	ctx, span := p.tracer.Start(ctx, "Postgres.StoreLocation")
	defer span.End()

	_, err := p.db.ExecContext(
		ctx,
		fmt.Sprintf(`INSERT INTO %s.user_locations
		(username, user_id, place_id, instance_id, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			place_id = EXCLUDED.place_id,
			instance_id = EXCLUDED.instance_id,
			last_seen_at = EXCLUDED.last_seen_at`,
			pq.QuoteIdentifier(p.schema)),
		location.Username,
		location.UserID,
		nullString(location.PlaceID),
		nullString(location.InstanceID),
		lastSeenAt,
	)
	if err != nil {
		err := fmt.Errorf("failed to upsert user location: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"username": location.Username,
		})
		return err
	}

	return nil
}

func (p *Postgres) UpdateLocation(ctx context.Context, username string, placeID string, instanceID string) error {
	ctx, span := p.tracer.Start(ctx, "Postgres.UpdateLocation")
	defer span.End()

	result, err := p.db.ExecContext(
		ctx,
		fmt.Sprintf(`UPDATE %s.user_locations
		SET place_id = $2, instance_id = $3
		WHERE username = $1`,
			pq.QuoteIdentifier(p.schema)),
		username,
		placeID,
		instanceID,
	)
	if err != nil {
		err := fmt.Errorf("failed to update user location: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"username": username,
		})
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		err := fmt.Errorf("failed to get affected rows: %w", err)
		reporting.Report(ctx, err)
		return err
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

func locationFromDB(location dbUserLocation) domain.UserLocation {
	result := domain.UserLocation{
		Username: location.Username,
		UserID:   location.UserID,
	}
	if location.PlaceID.Valid {
		placeID := location.PlaceID.String
		result.PlaceID = &placeID
	}
	if location.InstanceID.Valid {
		instanceID := location.InstanceID.String
		result.InstanceID = &instanceID
	}
	if location.LastSeenAt.Valid {
		lastSeenAt := location.LastSeenAt.Time
		result.LastSeenAt = &lastSeenAt
	}
	return result
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
