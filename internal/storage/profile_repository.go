package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sachinsingh018/meetsync/internal/model"
	"github.com/sachinsingh018/meetsync/internal/schedule"
	"github.com/sachinsingh018/meetsync/internal/scheduler"
	"github.com/sachinsingh018/meetsync/libs/db"
)

// ProfileRepository reads user profiles. Working hours are stored as
// minutes since local midnight and converted on the way out.
type ProfileRepository struct {
	pool *db.Pool
}

func NewProfileRepository(pool *db.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (model.Profile, error) {
	var (
		p         model.Profile
		startMins int
		endMins   int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, email, name, time_zone, work_start_minutes, work_end_minutes
		FROM users
		WHERE lower(email) = lower($1)
	`, email).Scan(&p.ID, &p.Email, &p.Name, &p.TimeZone, &startMins, &endMins)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, fmt.Errorf("%w: %s", scheduler.ErrProfileNotFound, email)
		}
		return model.Profile{}, err
	}
	p.Hours = schedule.WorkingHours{
		Start: minutesToTimeOfDay(startMins),
		End:   minutesToTimeOfDay(endMins),
	}
	if err := p.Hours.Validate(); err != nil {
		return model.Profile{}, fmt.Errorf("stored working hours for %s: %w", email, err)
	}
	return p, nil
}

func minutesToTimeOfDay(m int) schedule.TimeOfDay {
	return schedule.TimeOfDay{Hour: m / 60, Minute: m % 60}
}
