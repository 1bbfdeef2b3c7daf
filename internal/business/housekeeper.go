package business

import (
	"context"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/repo-explorer/internal/config"
	"github.com/openkcm/repo-explorer/pkg/session"
	sessionsql "github.com/openkcm/repo-explorer/pkg/session/sql"
)

type expiredSweeper interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// HousekeeperMain periodically deletes database sessions whose refresh window
// ended more than session.ExpiredRetention ago. ValKey and memory stores
// expire sessions themselves.
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.Type != config.StoreDatabase {
		slogctx.Info(ctx, "The session store expires sessions itself, nothing to do", "store", cfg.Store.Type)
		return nil
	}

	db, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runHousekeeping(ctx, sessionsql.NewRepository(db), cfg.Housekeeper.TriggerInterval)

	return nil
}

func runHousekeeping(ctx context.Context, sweeper expiredSweeper, interval time.Duration) {
	c := time.Tick(interval)
	for {
		deleted, err := sweeper.DeleteExpired(ctx, time.Now().Add(-session.ExpiredRetention))
		if err != nil {
			slogctx.Error(ctx, "Error during session housekeeping", "error", err)
		} else {
			slogctx.Info(ctx, "Deleted expired sessions", "count", deleted)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return
		}
	}
}
