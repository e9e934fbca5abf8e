// Package retention deletes messages that a room's retention policy no
// longer keeps.
package retention

import (
	"context"
	"log"
	"time"

	"github.com/npezzotti/go-vibes/internal/database"
	"github.com/npezzotti/go-vibes/internal/types"
)

type Janitor struct {
	log      *log.Logger
	db       database.VibeRepository
	interval time.Duration
	now      func() time.Time
}

func NewJanitor(logger *log.Logger, db database.VibeRepository, interval time.Duration) *Janitor {
	return &Janitor{
		log:      logger,
		db:       db,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Printf("retention janitor started, interval %s", j.interval)
	for {
		if _, err := j.Sweep(ctx); err != nil {
			j.log.Println("retention sweep:", err)
		}

		select {
		case <-ctx.Done():
			j.log.Println("retention janitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep cleans every room with a retention policy and returns the number of
// deleted messages. A failure in one room does not stop the others.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	rooms, err := j.db.ListRoomsWithRetention(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, room := range rooms {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		n, err := j.SweepRoom(ctx, room.Id, room.MessageRetention)
		if err != nil {
			j.log.Printf("cleanup room %q: %v", room.ExternalId, err)
			continue
		}
		if n > 0 {
			j.log.Printf("deleted %d messages from room %q (%s)", n, room.ExternalId, room.MessageRetention)
		}
		total += n
	}

	return total, nil
}

func (j *Janitor) SweepRoom(ctx context.Context, roomId int, retention string) (int, error) {
	if retention == types.RetentionNever || !types.ValidRetention(retention) {
		return 0, nil
	}

	return j.db.CleanupMessages(ctx, roomId, retention, j.now())
}
