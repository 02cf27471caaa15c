// Package whatsapp connects to a WhatsApp bridge via WebSocket. The bridge
// (whatsapp-web.js based) speaks the actual WhatsApp protocol; this channel
// exchanges JSON frames with it.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/itzamna-labs/chasqui/internal/bus"
	"github.com/itzamna-labs/chasqui/internal/channels"
	"github.com/itzamna-labs/chasqui/internal/config"
)

const (
	dialTimeout  = 10 * time.Second
	maxBackoff   = 30 * time.Second
	maxFrameSize = 1 << 20
)

// bridgeFrame is the JSON envelope exchanged with the bridge.
type bridgeFrame struct {
	Type           string `json:"type"`
	ID             string `json:"id,omitempty"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
	PushName       string `json:"push_name,omitempty"`
	Timestamp      int64  `json:"timestamp,omitempty"`
	IsGroup        bool   `json:"is_group,omitempty"`
	GroupName      string `json:"group_name,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	State          bool   `json:"state,omitempty"`
	Token          string `json:"token,omitempty"`
}

// Channel is the WhatsApp bridge adapter.
type Channel struct {
	*channels.BaseChannel
	cfg    config.WhatsAppConfig
	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus),
		cfg:         cfg,
	}, nil
}

// Start connects to the bridge and begins the read loop.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.cfg.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		// The reconnect loop keeps trying.
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop shuts the channel down.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "shutdown")
		c.conn = nil
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message to the bridge.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	return c.write(ctx, bridgeFrame{Type: "message", To: msg.Phone, Content: msg.Content})
}

// SetTyping toggles the typing indicator for a chat.
func (c *Channel) SetTyping(ctx context.Context, phone string, typing bool) error {
	return c.write(ctx, bridgeFrame{Type: "typing", To: phone, State: typing})
}

func (c *Channel) write(ctx context.Context, frame bridgeFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal bridge frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write to whatsapp bridge: %w", err)
	}
	return nil
}

func (c *Channel) connect() error {
	dialCtx, cancel := context.WithTimeout(c.ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.cfg.BridgeURL, err)
	}
	conn.SetReadLimit(maxFrameSize)

	if c.cfg.Token != "" {
		auth, _ := json.Marshal(bridgeFrame{Type: "auth", Token: c.cfg.Token})
		if err := conn.Write(c.ctx, websocket.MessageText, auth); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "auth write failed")
			return fmt.Errorf("authenticate to bridge: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.cfg.BridgeURL)
	return nil
}

// listenLoop reads bridge frames with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = time.Second
			continue
		}

		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			slog.Warn("whatsapp read error, will reconnect", "error", err)
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close(websocket.StatusGoingAway, "read error")
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid bridge frame", "error", err)
			continue
		}
		if frame.Type == "message" {
			c.handleIncoming(frame)
		}
	}
}

func (c *Channel) handleIncoming(frame bridgeFrame) {
	if frame.From == "" {
		return
	}

	content := frame.Content
	if content == "" {
		content = "[empty message]"
	}
	messageType := frame.MessageType
	if messageType == "" {
		messageType = "text"
	}
	ts := time.Now().UTC()
	if frame.Timestamp > 0 {
		ts = time.Unix(frame.Timestamp, 0).UTC()
	}

	slog.Debug("whatsapp message received",
		"from", frame.From,
		"type", messageType,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(bus.InboundMessage{
		MessageID:      frame.ID,
		Phone:          frame.From,
		Content:        content,
		MessageType:    messageType,
		PushName:       frame.PushName,
		Timestamp:      ts,
		IsGroupMessage: frame.IsGroup,
		GroupName:      frame.GroupName,
		ConversationID: frame.ConversationID,
	})
}
