package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/itzamna-labs/chasqui/internal/ai"
	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/channels"
	"github.com/itzamna-labs/chasqui/internal/channels/discord"
	"github.com/itzamna-labs/chasqui/internal/channels/telegram"
	"github.com/itzamna-labs/chasqui/internal/channels/whatsapp"
	"github.com/itzamna-labs/chasqui/internal/config"
	"github.com/itzamna-labs/chasqui/internal/gateway"
	"github.com/itzamna-labs/chasqui/internal/nlq"
	"github.com/itzamna-labs/chasqui/internal/pipeline"
	"github.com/itzamna-labs/chasqui/internal/retrieval"
	"github.com/itzamna-labs/chasqui/internal/scheduler"
	"github.com/itzamna-labs/chasqui/internal/store"
	"github.com/itzamna-labs/chasqui/internal/store/pg"
	"github.com/itzamna-labs/chasqui/internal/store/sqlite"
	"github.com/itzamna-labs/chasqui/internal/telemetry"
)

const sendTimeout = 15 * time.Second

func runGateway() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) && cfg.AI.APIKey == "" {
		fmt.Println("No configuration found. Starting setup wizard...")
		fmt.Println()
		runOnboard(cfgPath)
		return
	}
	if cfg.AI.APIKey == "" {
		slog.Warn("CHASQUI_OPENAI_API_KEY is not set; AI gate and replies run in degraded mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Snapshot().Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTelemetry(flushCtx)
		}()
	}

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	msgBus := bus.NewMessageBus()

	aiClient := ai.New(cfg.Snapshot().AI)
	retriever := retrieval.New(stores.Messages)
	translator := nlq.NewTranslator(cfg.Location(), cfg.Snapshot().Assistant.FloorYear)
	dispatcher := nlq.NewDispatcher(aiClient, translator, retriever, stores)

	manager := channels.NewManager(msgBus)
	registerChannels(manager, cfg, msgBus)

	sender := &managerSender{manager: manager}
	pipe := pipeline.New(cfg, stores, aiClient, sender, dispatcher)

	server := gateway.NewServer(cfg, msgBus, retriever, pipe.Stats(), manager)
	pipe.SetEvents(server.Hub())

	summaries := scheduler.NewSummaries(makeSummaryFunc(stores, aiClient, server.Hub()))
	defer summaries.Shutdown()
	pipe.SetScheduler(summaries)
	server.SetConversations(stores.Conversations)
	server.SetSummaryCanceller(summaries)

	lanes := scheduler.NewLanes()
	defer lanes.Shutdown()

	// Config hot reload: assistant toggles and preferences apply without a
	// restart. Secrets still come from env on every reload.
	go func() {
		if err := config.Watch(ctx, cfgPath, cfg); err != nil && ctx.Err() == nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	if dg := cfg.Snapshot().Digest; dg.Enabled {
		digest := scheduler.NewDigest(dg.Schedule, makeDigestFunc(stores, server.Hub()))
		go func() {
			if err := digest.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("digest scheduler stopped", "error", err)
			}
		}()
	}

	if err := manager.StartAll(ctx); err != nil {
		slog.Error("channel startup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = manager.StopAll(stopCtx)
	}()

	go consumeInboundMessages(ctx, msgBus, pipe, lanes)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	db := cfg.Snapshot().Database
	storeCfg := store.Config{
		Mode:        db.Mode,
		PostgresDSN: db.PostgresDSN,
		SQLitePath:  db.SQLitePath,
	}
	if cfg.IsPostgres() {
		slog.Info("storage: postgres")
		return pg.NewStores(storeCfg)
	}
	slog.Info("storage: sqlite", "path", db.SQLitePath)
	return sqlite.NewStores(storeCfg)
}

func registerChannels(manager *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus) {
	snap := cfg.Snapshot()
	rpm := snap.Gateway.RateLimitRPM

	if c := snap.Channels.WhatsApp; c.Enabled {
		ch, err := whatsapp.New(c, msgBus)
		if err != nil {
			slog.Error("whatsapp channel not registered", "error", err)
		} else {
			manager.Register(ch, rpm)
		}
	}
	if c := snap.Channels.Telegram; c.Enabled {
		ch, err := telegram.New(c, msgBus)
		if err != nil {
			slog.Error("telegram channel not registered", "error", err)
		} else {
			manager.Register(ch, rpm)
		}
	}
	if c := snap.Channels.Discord; c.Enabled {
		ch, err := discord.New(c, msgBus)
		if err != nil {
			slog.Error("discord channel not registered", "error", err)
		} else {
			manager.Register(ch, rpm)
		}
	}
}

// managerSender adapts the channel manager to the pipeline's Sender. Channel
// transports don't report provider message ids, so the id is always empty.
type managerSender struct {
	manager *channels.Manager
}

func (s *managerSender) Send(ctx context.Context, channel, phone, text string) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	// Typing indicator is fire-and-forget; a reply may still land while the
	// indicator frame is in flight.
	typer, ok := s.typing(channel)
	if ok {
		_ = typer.SetTyping(sendCtx, phone, true)
		defer func() { _ = typer.SetTyping(context.Background(), phone, false) }()
	}

	if err := s.manager.SendTo(sendCtx, channel, phone, text); err != nil {
		return "", err
	}
	return "", nil
}

func (s *managerSender) typing(channel string) (channels.TypingChannel, bool) {
	ch, ok := s.manager.Get(channel)
	if !ok {
		return nil, false
	}
	typer, ok := ch.(channels.TypingChannel)
	return typer, ok
}

// makeSummaryFunc builds the deferred-summary task: summarize the last day of
// a busy high-priority conversation and push it to WS observers.
func makeSummaryFunc(stores *store.Stores, aiClient *ai.Client, events *gateway.Hub) scheduler.SummaryFunc {
	return func(ctx context.Context, conversationID uuid.UUID) {
		now := time.Now().UTC()
		rows, err := stores.Messages.Recent(ctx, conversationID,
			store.TimeRange{Start: now.Add(-24 * time.Hour), End: now}, 50)
		if err != nil || len(rows) == 0 {
			return
		}

		var corpus strings.Builder
		for _, m := range rows {
			fmt.Fprintf(&corpus, "[%s] %s: %s\n", m.Timestamp.Format("15:04"), m.Sender, m.Content)
		}

		summary, err := aiClient.Summarize(ctx, "Summarize this conversation for the business owner.", corpus.String())
		if err != nil {
			slog.Warn("conversation summary failed", "conversation_id", conversationID, "error", err)
			return
		}

		slog.Info("conversation summary ready", "conversation_id", conversationID)
		events.Broadcast(bus.Event{Name: "conversation.summary", Payload: map[string]interface{}{
			"conversation_id": conversationID.String(),
			"summary":         summary,
		}})
	}
}

// makeDigestFunc builds the cron digest task: an operator overview of open
// high-priority conversations.
func makeDigestFunc(stores *store.Stores, events *gateway.Hub) scheduler.DigestFunc {
	return func(ctx context.Context) {
		convs, err := stores.Conversations.ListByPriority(ctx,
			[]string{store.PriorityHigh, store.PriorityUrgent}, 20)
		if err != nil {
			slog.Warn("digest query failed", "error", err)
			return
		}
		if len(convs) == 0 {
			slog.Info("digest: no high-priority conversations")
			return
		}

		items := make([]map[string]interface{}, 0, len(convs))
		for _, c := range convs {
			items = append(items, map[string]interface{}{
				"conversation_id": c.ID.String(),
				"priority":        c.Priority,
				"messages":        c.MessageCount,
				"last_message_at": c.LastMessageAt,
			})
		}

		slog.Info("digest ready", "conversations", len(convs))
		events.Broadcast(bus.Event{Name: "digest", Payload: map[string]interface{}{
			"generated_at":  time.Now().UTC(),
			"conversations": items,
		}})
	}
}
