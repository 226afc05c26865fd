package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trading-orchestrator/config"
	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/events"

	"github.com/rs/zerolog"
)

// Notification is one operator-facing message
type Notification struct {
	Severity  string
	Title     string
	Message   string
	ModelID   int64
	Timestamp time.Time
}

// Notifier delivers notifications over one channel
type Notifier interface {
	Send(n *Notification) error
	Name() string
	IsEnabled() bool
}

var severityRank = map[string]int{
	database.SeverityLow:      0,
	database.SeverityMedium:   1,
	database.SeverityHigh:     2,
	database.SeverityCritical: 3,
}

// Manager fans notifications out to the configured channels, filtered by a
// minimum severity. It subscribes to the event bus so callers never wait on
// a webhook.
type Manager struct {
	notifiers   []Notifier
	minSeverity string
	logger      zerolog.Logger
}

// NewManager builds the manager from config, wiring whichever channels are
// enabled
func NewManager(cfg config.NotificationConfig, minSeverity string, logger zerolog.Logger) *Manager {
	m := &Manager{minSeverity: minSeverity, logger: logger}
	if !cfg.Enabled {
		return m
	}
	if t := NewTelegramNotifier(cfg.Telegram); t.IsEnabled() {
		m.notifiers = append(m.notifiers, t)
	}
	if d := NewDiscordNotifier(cfg.Discord); d.IsEnabled() {
		m.notifiers = append(m.notifiers, d)
	}
	return m
}

// Attach subscribes the manager to the bus events operators care about
func (m *Manager) Attach(bus *events.Bus) {
	if len(m.notifiers) == 0 {
		return
	}
	bus.Subscribe(events.EventTradeExecuted, m.onTradeExecuted)
	bus.Subscribe(events.EventPendingCreated, m.onPendingCreated)
	bus.Subscribe(events.EventAutoPause, m.alert("Auto-pause", database.SeverityHigh))
	bus.Subscribe(events.EventEmergencyPause, m.alert("Emergency pause", database.SeverityHigh))
	bus.Subscribe(events.EventEmergencyStopAll, m.alert("Emergency stop all", database.SeverityCritical))
	bus.Subscribe(events.EventError, m.onError)
}

// Send delivers to every enabled channel, returning the last failure
func (m *Manager) Send(n *Notification) error {
	if len(m.notifiers) == 0 {
		return nil
	}
	if rank, ok := severityRank[n.Severity]; ok && rank < severityRank[m.minSeverity] {
		return nil
	}

	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			m.logger.Error().Err(err).Str("channel", notifier.Name()).Msg("notification delivery failed")
			lastErr = err
		}
	}
	return lastErr
}

// alert builds a subscriber that forwards the raw event data as a fixed
// severity message
func (m *Manager) alert(title, severity string) events.Subscriber {
	return func(e events.Event) {
		body, _ := json.Marshal(e.Data)
		_ = m.Send(&Notification{
			Severity:  severity,
			Title:     title,
			Message:   string(body),
			ModelID:   e.ModelID,
			Timestamp: e.Timestamp,
		})
	}
}

func (m *Manager) onError(e events.Event) {
	source, _ := e.Data["source"].(string)
	message, _ := e.Data["message"].(string)
	_ = m.Send(&Notification{
		Severity:  database.SeverityHigh,
		Title:     fmt.Sprintf("Error in %s", source),
		Message:   message,
		ModelID:   e.ModelID,
		Timestamp: e.Timestamp,
	})
}

func (m *Manager) onTradeExecuted(e events.Event) {
	coin, _ := e.Data["coin"].(string)
	side, _ := e.Data["side"].(string)
	price, _ := e.Data["price"].(string)
	quantity, _ := e.Data["quantity"].(string)
	_ = m.Send(&Notification{
		Severity:  database.SeverityLow,
		Title:     fmt.Sprintf("Trade: %s %s", side, coin),
		Message:   fmt.Sprintf("model %d filled %s %s %s @ %s", e.ModelID, side, quantity, coin, price),
		ModelID:   e.ModelID,
		Timestamp: e.Timestamp,
	})
}

func (m *Manager) onPendingCreated(e events.Event) {
	coin, _ := e.Data["coin"].(string)
	_ = m.Send(&Notification{
		Severity:  database.SeverityMedium,
		Title:     fmt.Sprintf("Approval needed: %s", coin),
		Message:   fmt.Sprintf("model %d queued a trade proposal for %s, expires in 1h", e.ModelID, coin),
		ModelID:   e.ModelID,
		Timestamp: e.Timestamp,
	})
}

// ============================================================================
// TELEGRAM
// ============================================================================

// TelegramNotifier sends via the Telegram bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier. Disabled unless both token
// and chat id are configured.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) IsEnabled() bool { return t.enabled }

func (t *TelegramNotifier) Send(n *Notification) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", n.Title, n.Message),
		"parse_mode": "Markdown",
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// ============================================================================
// DISCORD
// ============================================================================

// DiscordNotifier sends via a Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// NewDiscordNotifier creates a Discord notifier. Disabled without a webhook
// URL.
func NewDiscordNotifier(cfg config.DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) IsEnabled() bool { return d.enabled }

func (d *DiscordNotifier) Send(n *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x2ECC71
	switch n.Severity {
	case database.SeverityMedium:
		color = 0xF1C40F
	case database.SeverityHigh:
		color = 0xE67E22
	case database.SeverityCritical:
		color = 0xE74C3C
	}

	embed := map[string]any{
		"title":       n.Title,
		"description": n.Message,
		"color":       color,
		"timestamp":   n.Timestamp.Format(time.RFC3339),
	}
	if n.ModelID != 0 {
		embed["fields"] = []map[string]any{
			{"name": "Model", "value": fmt.Sprintf("%d", n.ModelID), "inline": true},
			{"name": "Severity", "value": n.Severity, "inline": true},
		}
	}

	jsonData, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return nil
}
