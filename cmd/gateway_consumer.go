package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/pipeline"
	"github.com/itzamna-labs/chasqui/internal/scheduler"
)

// consumeInboundMessages reads channel messages off the bus and runs each one
// through the pipeline on its conversation lane: FIFO per contact, parallel
// across contacts. A dedupe cache in front absorbs webhook retries before any
// store work happens.
func consumeInboundMessages(ctx context.Context, msgBus *bus.MessageBus, pipe *pipeline.Pipeline, lanes *scheduler.Lanes) {
	slog.Info("inbound message consumer started")

	dedupe := bus.NewDedupeCache(20*time.Minute, 5000)

	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound message consumer stopped")
			return
		}

		if msg.MessageID != "" && dedupe.IsDuplicate(msg.Channel+":"+msg.MessageID) {
			slog.Debug("duplicate delivery dropped",
				"channel", msg.Channel, "message_id", msg.MessageID)
			continue
		}

		m := msg
		laneKey := m.Channel + "/" + m.Phone
		if !lanes.Submit(laneKey, func(taskCtx context.Context) {
			res := pipe.Process(taskCtx, m)
			if res.Err != nil {
				slog.Error("message processing failed",
					"channel", m.Channel, "phone", m.Phone, "error", res.Err)
			} else {
				slog.Debug("message processed",
					"channel", m.Channel, "reason", res.Reason, "responded", res.Responded)
			}
		}) {
			slog.Warn("lane rejected message", "lane", laneKey)
		}
	}
}
