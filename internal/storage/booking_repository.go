package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sachinsingh018/meetsync/internal/model"
	"github.com/sachinsingh018/meetsync/internal/outbox"
	"github.com/sachinsingh018/meetsync/internal/scheduler"
	"github.com/sachinsingh018/meetsync/libs/db"
)

// BookingRepository persists bookings. Exclusivity comes from a unique
// index on (pair_key, start_time): the first committer wins and every
// concurrent loser sees a unique violation, which surfaces as
// scheduler.ErrSlotTaken.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, ob *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: ob}
}

// Commit inserts the booking and its outbox event in one transaction so a
// booking can never exist without its published event, or vice versa.
func (r *BookingRepository) Commit(ctx context.Context, b *model.Booking, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings
			(id, pair_key, start_time, end_time, participant_a, participant_b, confirmed_by, ics_text, calendar_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.PairKey, b.StartTime, b.EndTime, b.ParticipantA, b.ParticipantB,
		b.ConfirmedBy, b.ICSText, b.CalendarURL, b.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s at %s", scheduler.ErrSlotTaken, b.PairKey, b.StartTime)
		}
		return err
	}

	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *BookingRepository) ListByParticipant(ctx context.Context, email string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, pair_key, start_time, end_time, participant_a, participant_b,
			confirmed_by, ics_text, calendar_url, created_at
		FROM bookings
		WHERE lower(participant_a) = lower($1) OR lower(participant_b) = lower($1)
		ORDER BY start_time DESC
		LIMIT $2
	`, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(
			&b.ID,
			&b.PairKey,
			&b.StartTime,
			&b.EndTime,
			&b.ParticipantA,
			&b.ParticipantB,
			&b.ConfirmedBy,
			&b.ICSText,
			&b.CalendarURL,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
