package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/itzamna-labs/chasqui/internal/bus"
)

// Manager owns the channel lifecycle and routes outbound messages from the
// bus to the right adapter, pacing sends per channel so platform rate limits
// are respected.
type Manager struct {
	channels map[string]Channel
	limiters map[string]*rate.Limiter
	bus      *bus.MessageBus
	cancel   context.CancelFunc
	mu       sync.RWMutex
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		limiters: make(map[string]*rate.Limiter),
		bus:      msgBus,
	}
}

// Register adds a channel with a per-minute send budget. rpm <= 0 means
// unlimited.
func (m *Manager) Register(channel Channel, rpm int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel.Name()] = channel
	if rpm > 0 {
		m.limiters[channel.Name()] = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm/4+1)
	}
}

// StartAll starts every registered channel and the outbound dispatch loop.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.dispatchOutbound(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	// Channels connect independently; one slow handshake must not delay the
	// rest. A failed channel logs and stays registered for manual retry.
	var g errgroup.Group
	for name, channel := range m.channels {
		name, channel := name, channel
		g.Go(func() error {
			slog.Info("starting channel", "channel", name)
			if err := channel.Start(ctx); err != nil {
				slog.Error("channel failed to start", "channel", name, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll stops the dispatcher and every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	for name, channel := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

// dispatchOutbound drains the bus and delivers to adapters.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	slog.Info("outbound dispatcher started")
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			slog.Info("outbound dispatcher stopped")
			return
		}

		m.mu.RLock()
		channel, exists := m.channels[msg.Channel]
		limiter := m.limiters[msg.Channel]
		m.mu.RUnlock()

		if !exists {
			slog.Warn("unknown channel for outbound message", "channel", msg.Channel)
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		if err := channel.Send(ctx, msg); err != nil {
			slog.Error("outbound send failed", "channel", msg.Channel, "phone", msg.Phone, "error", err)
		}
	}
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// Status reports the running state of every channel.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, channel := range m.channels {
		status[name] = channel.IsRunning()
	}
	return status
}

// SendTo delivers one message directly to a named channel, respecting its
// rate budget.
func (m *Manager) SendTo(ctx context.Context, channelName, phone, content string) error {
	m.mu.RLock()
	channel, exists := m.channels[channelName]
	limiter := m.limiters[channelName]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return channel.Send(ctx, bus.OutboundMessage{Channel: channelName, Phone: phone, Content: content})
}
