package storage

import (
	"context"
	"time"

	"github.com/sachinsingh018/meetsync/internal/schedule"
	"github.com/sachinsingh018/meetsync/libs/db"
)

// BlocksRepository reads recurring weekly blocks. Block times are stored as
// minutes since local midnight in the owner's declared zone.
type BlocksRepository struct {
	pool *db.Pool
}

func NewBlocksRepository(pool *db.Pool) *BlocksRepository {
	return &BlocksRepository{pool: pool}
}

func (r *BlocksRepository) ListByOwner(ctx context.Context, ownerID string) ([]schedule.RecurringBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT owner_id::text, weekday, start_minutes, end_minutes, time_zone
		FROM recurring_blocks
		WHERE owner_id = $1
		ORDER BY weekday, start_minutes
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []schedule.RecurringBlock
	for rows.Next() {
		var (
			b         schedule.RecurringBlock
			weekday   int
			startMins int
			endMins   int
		)
		if err := rows.Scan(&b.OwnerID, &weekday, &startMins, &endMins, &b.Zone); err != nil {
			return nil, err
		}
		b.Weekday = time.Weekday(weekday)
		b.Start = minutesToTimeOfDay(startMins)
		b.End = minutesToTimeOfDay(endMins)
		if err := b.Validate(); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return blocks, nil
}
