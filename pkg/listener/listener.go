package listener

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/param"
	"go.uber.org/zap"
)

// NotificationHandler processes one claimed work item.
type NotificationHandler func(notification *pgconn.Notification) error

// LockKeyExtractor derives a serialization key from a payload. Work items
// sharing a key on the same channel run one at a time.
type LockKeyExtractor func(payload []byte) (string, error)

const WorkQueueTable = "work_queue"

// Listener subscribes to postgres LISTEN/NOTIFY channels and drains the
// durable work queue behind them. Notifications only wake the queue
// processors; the queue itself is the source of truth, so work enqueued
// while the worker was down is picked up on start.
type Listener struct {
	conn              *pgx.Conn
	pgURI             string
	reconnectInterval time.Duration
	handlers          map[string]NotificationHandler
	processors        map[string]*queueProcessor
	queueLocks        map[string]map[string]chan struct{}
	mu                sync.Mutex
}

type queueProcessor struct {
	channel          string
	handler          NotificationHandler
	workerPool       chan struct{}
	maxWorkers       int
	maxDuration      time.Duration
	lockKeyExtractor LockKeyExtractor
	processing       bool
}

func NewListener() *Listener {
	return &Listener{
		pgURI:             param.Get().PGURI,
		reconnectInterval: 5 * time.Second,
		handlers:          make(map[string]NotificationHandler),
		processors:        make(map[string]*queueProcessor),
		queueLocks:        make(map[string]map[string]chan struct{}),
	}
}

// AddHandler registers a handler and its worker pool for one channel.
// maxDuration is how long a claimed item may process before it is
// considered abandoned and offered to another worker.
func (l *Listener) AddHandler(ctx context.Context, channel string, maxWorkers int, maxDuration time.Duration, handler NotificationHandler, lockKeyExtractor LockKeyExtractor) {
	l.handlers[channel] = handler
	l.processors[channel] = &queueProcessor{
		channel:          channel,
		handler:          handler,
		workerPool:       make(chan struct{}, maxWorkers),
		maxWorkers:       maxWorkers,
		maxDuration:      maxDuration,
		lockKeyExtractor: lockKeyExtractor,
	}
}

// Start connects, subscribes every registered channel, drains any backlog,
// and begins relaying notifications.
func (l *Listener) Start(ctx context.Context) error {
	logger.Info("starting listener")

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(connectCtx, l.pgURI)
	if err != nil {
		if reconnectErr := l.reconnect(ctx); reconnectErr != nil {
			return fmt.Errorf("failed to establish database connection: %w", reconnectErr)
		}
	} else {
		l.conn = conn
	}

	for channel := range l.handlers {
		if err := l.listenChannel(ctx, channel); err != nil {
			return err
		}

		processor := l.processors[channel]
		if !processor.processing {
			processor.processing = true
			go l.processQueue(ctx, processor)
		}
	}

	logger.Info("subscribed to notification channels", zap.Int("channelCount", len(l.handlers)))

	go l.processNotifications(ctx)

	return nil
}

// Stop closes the notification connection.
func (l *Listener) Stop(ctx context.Context) error {
	if l.conn != nil {
		return l.conn.Close(ctx)
	}
	return nil
}

func (l *Listener) listenChannel(ctx context.Context, channel string) error {
	listenCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if _, err := l.conn.Exec(listenCtx, fmt.Sprintf("LISTEN %s", channel)); err != nil {
			lastErr = err
			logger.Warn("LISTEN failed, retrying",
				zap.String("channel", channel),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			select {
			case <-time.After(250 * time.Millisecond):
			case <-listenCtx.Done():
				return fmt.Errorf("failed to listen on %s: %w", channel, lastErr)
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to listen on %s: %w", channel, lastErr)
}

func (l *Listener) processNotifications(ctx context.Context) {
	consecutiveErrors := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if l.conn == nil {
			if err := l.reconnect(ctx); err != nil {
				logger.Error(fmt.Errorf("failed to reconnect: %w", err))
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
		}

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		notification, err := l.conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}

			if strings.Contains(err.Error(), "context deadline exceeded") {
				// Quiet period; nudge the processors in case a NOTIFY
				// was lost while the connection was degraded.
				l.wakeProcessors(ctx)
				continue
			}

			consecutiveErrors++
			logger.Error(fmt.Errorf("failed to wait for notification: %w", err),
				zap.Int("consecutiveErrors", consecutiveErrors))

			if consecutiveErrors >= 3 || strings.Contains(err.Error(), "terminating connection") {
				if err := l.reconnect(ctx); err != nil {
					logger.Error(fmt.Errorf("failed to reconnect: %w", err))
					select {
					case <-time.After(5 * time.Second):
					case <-ctx.Done():
						return
					}
				} else {
					consecutiveErrors = 0
				}
			}
			continue
		}

		consecutiveErrors = 0

		processor, ok := l.processors[notification.Channel]
		if !ok {
			logger.Warn("no processor registered for channel", zap.String("channel", notification.Channel))
			continue
		}
		if !processor.processing {
			processor.processing = true
			go l.processQueue(ctx, processor)
		}
	}
}

func (l *Listener) wakeProcessors(ctx context.Context) {
	for _, processor := range l.processors {
		if !processor.processing {
			processor.processing = true
			go l.processQueue(ctx, processor)
		}
	}
}

// processQueue claims and runs work for one channel until the queue is
// empty, then parks until the next notification.
func (l *Listener) processQueue(ctx context.Context, processor *queueProcessor) {
	defer func() { processor.processing = false }()

	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := l.claimMessages(ctx, processor)
		if err != nil {
			logger.Error(fmt.Errorf("failed to claim messages on %s: %w", processor.channel, err))
			return
		}
		if len(messages) == 0 {
			return
		}

		logger.Info("processing messages",
			zap.Int("count", len(messages)),
			zap.String("channel", processor.channel))

		for _, msg := range messages {
			if msg.attemptCount > 0 {
				logger.Info("retrying message",
					zap.String("id", msg.id),
					zap.Int("attempt", msg.attemptCount))
			}

			processor.workerPool <- struct{}{}
			go l.runWorkItem(ctx, processor, msg)
		}
	}
}

type workItem struct {
	id           string
	payload      []byte
	attemptCount int
}

// claimMessages atomically marks up to maxWorkers available items as
// in-flight and returns them. Items whose previous claim exceeded
// maxDuration are offered again with an incremented attempt count.
func (l *Listener) claimMessages(ctx context.Context, processor *queueProcessor) ([]workItem, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(dbCtx, l.pgURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(dbCtx)

	rows, err := conn.Query(dbCtx, fmt.Sprintf(`
		WITH next_available AS (
			SELECT id
			FROM %s
			WHERE completed_at IS NULL
			AND channel = $1
			AND (
				processing_started_at IS NULL
				OR processing_started_at < NOW() - $2::interval
			)
			ORDER BY created_at ASC
			LIMIT %d
			FOR UPDATE SKIP LOCKED
		)
		UPDATE %s AS wq
		SET processing_started_at = NOW(),
			attempt_count = CASE
				WHEN wq.processing_started_at IS NOT NULL THEN COALESCE(wq.attempt_count, 0) + 1
				ELSE 0
			END
		FROM next_available
		WHERE wq.id = next_available.id
		RETURNING wq.id, wq.payload, COALESCE(wq.attempt_count, 0)::int`,
		WorkQueueTable, processor.maxWorkers, WorkQueueTable),
		processor.channel, processor.maxDuration.String())
	if err != nil {
		return nil, fmt.Errorf("failed to claim work: %w", err)
	}
	defer rows.Close()

	var messages []workItem
	for rows.Next() {
		var msg workItem
		if err := rows.Scan(&msg.id, &msg.payload, &msg.attemptCount); err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (l *Listener) runWorkItem(ctx context.Context, processor *queueProcessor, msg workItem) {
	defer func() { <-processor.workerPool }()

	startTime := time.Now()

	if processor.lockKeyExtractor != nil {
		lockKey, err := processor.lockKeyExtractor(msg.payload)
		if err != nil {
			logger.Error(fmt.Errorf("failed to extract lock key: %w", err))
			return
		}
		if lockKey != "" {
			lockChan := l.getQueueLock(processor.channel, lockKey)
			<-lockChan
			defer func() { lockChan <- struct{}{} }()
		}
	}

	handlerErr := processor.handler(&pgconn.Notification{
		Channel: processor.channel,
		Payload: string(msg.payload),
	})

	updateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(updateCtx, l.pgURI)
	if err != nil {
		logger.Error(fmt.Errorf("failed to connect for work item update: %w", err))
		return
	}
	defer conn.Close(updateCtx)

	if handlerErr != nil {
		// Release the claim so another worker retries it.
		_, err := conn.Exec(updateCtx, fmt.Sprintf(`
			UPDATE %s
			SET processing_started_at = NULL,
				last_error = $2,
				attempt_count = attempt_count + 1
			WHERE id = $1`, WorkQueueTable), msg.id, handlerErr.Error())
		if err != nil {
			logger.Error(fmt.Errorf("failed to mark work item %s failed: %w", msg.id, err))
		}
		return
	}

	if _, err := conn.Exec(updateCtx, fmt.Sprintf(`
		UPDATE %s SET completed_at = NOW() WHERE id = $1`, WorkQueueTable), msg.id); err != nil {
		logger.Error(fmt.Errorf("failed to mark work item %s completed: %w", msg.id, err))
		return
	}

	logger.Info("work item processed",
		zap.String("id", msg.id),
		zap.String("channel", processor.channel),
		zap.Duration("duration", time.Since(startTime)))
}

func (l *Listener) getQueueLock(channel, lockKey string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.queueLocks[channel]; !ok {
		l.queueLocks[channel] = make(map[string]chan struct{})
	}
	lockChan, ok := l.queueLocks[channel][lockKey]
	if !ok {
		lockChan = make(chan struct{}, 1)
		lockChan <- struct{}{}
		l.queueLocks[channel][lockKey] = lockChan
	}
	return lockChan
}

// reconnect reestablishes the notification connection with exponential
// backoff and resubscribes every channel.
func (l *Listener) reconnect(ctx context.Context) error {
	backoff := l.reconnectInterval
	maxBackoff := 5 * time.Minute
	attempt := 0

	logger.Info("database connection lost, reconnecting")

	for {
		attempt++

		if l.conn != nil {
			l.conn.Close(ctx)
			l.conn = nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("context canceled during reconnection: %w", ctx.Err())
		}

		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		conn, err := pgx.Connect(connectCtx, l.pgURI)
		cancel()

		if err == nil {
			l.conn = conn

			resubscribed := true
			for channel := range l.handlers {
				if err := l.listenChannel(ctx, channel); err != nil {
					logger.Error(err)
					resubscribed = false
					break
				}
			}

			if resubscribed {
				logger.Info("reconnected and resubscribed",
					zap.Int("channelCount", len(l.handlers)),
					zap.Int("attempt", attempt))
				l.wakeProcessors(ctx)
				return nil
			}

			l.conn.Close(ctx)
			l.conn = nil
		} else {
			logger.Error(fmt.Errorf("failed to connect to database: %w", err))
		}

		if backoff*2 > maxBackoff {
			backoff = maxBackoff
		} else {
			backoff *= 2
		}
		jitter := time.Duration(float64(backoff) * (0.8 + 0.4*rand.Float64()))

		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return fmt.Errorf("context canceled during reconnection backoff: %w", ctx.Err())
		}
	}
}
