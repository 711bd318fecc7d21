package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stagehand-dev/stagehand/pkg/persistence"
	"github.com/stagehand-dev/stagehand/pkg/realtime/types"
	"github.com/stagehand-dev/stagehand/pkg/stream"
)

var bus *stream.Bus

// Init wires the publisher to the process-wide stream bus. Events are
// relayed per channel and replayed by cursor for late subscribers.
func Init(b *stream.Bus) {
	bus = b
}

// Bus exposes the relay so pollers can read with a cursor.
func Bus() *stream.Bus {
	return bus
}

// SendEvent publishes e onto its channel. The relay is best effort; a
// dropped event is not an error for the caller's main work.
func SendEvent(ctx context.Context, e types.Event) error {
	if bus == nil {
		return fmt.Errorf("realtime bus not initialized")
	}

	messageData, err := e.GetMessageData()
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(messageData)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	kind, _ := messageData["eventType"].(string)
	bus.Push(e.GetChannelName(), kind, string(encoded))
	return nil
}

// Ping checks that the realtime path is usable, both the in-process relay
// and the database the handlers publish from.
func Ping(ctx context.Context) error {
	if bus == nil {
		return fmt.Errorf("realtime bus not initialized")
	}

	conn := persistence.MustGetPooledPostgresSession()
	defer conn.Release()

	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("realtime database check failed: %w", err)
	}

	return nil
}
