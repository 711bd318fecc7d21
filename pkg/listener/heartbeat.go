package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/realtime"
	"go.uber.org/zap"
)

var (
	heartbeatOnce sync.Once
	heartbeatDone chan struct{}
)

// StartHeartbeat periodically pings the database and the realtime relay so
// idle deployments notice a dead dependency before the next work item does.
func StartHeartbeat(ctx context.Context) {
	heartbeatOnce.Do(func() {
		heartbeatDone = make(chan struct{})

		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if err := ensureActiveConnection(ctx); err != nil {
						logger.Warn("connection heartbeat check failed", zap.Error(err))
					}
					if err := realtime.Ping(ctx); err != nil {
						logger.Warn("realtime heartbeat check failed", zap.Error(err))
					}

				case <-ctx.Done():
					close(heartbeatDone)
					return

				case <-heartbeatDone:
					return
				}
			}
		}()

		logger.Info("started connection heartbeat")
	})
}

func ensureActiveConnection(ctx context.Context) error {
	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	var result int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}

	return nil
}
