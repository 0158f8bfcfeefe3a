package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"futures-advisor/internal/logging"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyAdvice     NotificationType = "advice"
	NotifyConflict   NotificationType = "conflict"
	NotifyDataSource NotificationType = "data_source"
	NotifyError      NotificationType = "error"
	NotifyInfo       NotificationType = "info"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Timestamp time.Time
	Extra     map[string]interface{}
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a new notification manager
func NewManager(enabled bool) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   enabled,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendAdvice sends an actionable advisory notification
func (m *Manager) SendAdvice(symbol, shortDecision, mediumDecision, alignmentType, confidence string) error {
	return m.Send(&Notification{
		Type:    NotifyAdvice,
		Title:   fmt.Sprintf("Advice: %s", symbol),
		Message: fmt.Sprintf("short=%s medium=%s alignment=%s confidence=%s", shortDecision, mediumDecision, alignmentType, confidence),
		Symbol:  symbol,
		Extra: map[string]interface{}{
			"short_decision":  shortDecision,
			"medium_decision": mediumDecision,
			"alignment_type":  alignmentType,
			"confidence":      confidence,
		},
	})
}

// SendConflict sends a cross-horizon conflict notification
func (m *Manager) SendConflict(symbol, alignmentType, recommendedAction string) error {
	return m.Send(&Notification{
		Type:    NotifyConflict,
		Title:   fmt.Sprintf("Horizon conflict: %s", symbol),
		Message: fmt.Sprintf("%s, recommended action: %s", alignmentType, recommendedAction),
		Symbol:  symbol,
		Extra: map[string]interface{}{
			"alignment_type":     alignmentType,
			"recommended_action": recommendedAction,
		},
	})
}

// SendDataSource sends a data-source availability notification
func (m *Manager) SendDataSource(source string, up bool, reason string) error {
	state := "down"
	if up {
		state = "recovered"
	}
	msg := fmt.Sprintf("data source %s is %s", source, state)
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	return m.Send(&Notification{
		Type:    NotifyDataSource,
		Title:   fmt.Sprintf("Data source %s", state),
		Message: msg,
	})
}

// SendError sends an error notification
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:    NotifyError,
		Title:   title,
		Message: message,
	})
}

// =============================================================================
// LOG NOTIFIER
// =============================================================================

// LogNotifier writes notifications to the structured log. Always available;
// used as the default provider when no webhook is configured.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger.WithComponent("notification")}
}

func (l *LogNotifier) Name() string {
	return "log"
}

func (l *LogNotifier) IsEnabled() bool {
	return true
}

func (l *LogNotifier) Send(notification *Notification) error {
	l.logger.Info(notification.Title,
		"type", string(notification.Type),
		"symbol", notification.Symbol,
		"message", notification.Message,
	)
	return nil
}

// =============================================================================
// WEBHOOK NOTIFIER
// =============================================================================

// WebhookNotifier POSTs notifications as JSON to a configured URL
type WebhookNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// WebhookConfig holds webhook configuration
type WebhookConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(config WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Name() string {
	return "webhook"
}

func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

func (w *WebhookNotifier) Send(notification *Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      string(notification.Type),
		"title":     notification.Title,
		"message":   notification.Message,
		"symbol":    notification.Symbol,
		"timestamp": notification.Timestamp.Format(time.RFC3339),
	}
	if len(notification.Extra) > 0 {
		payload["extra"] = notification.Extra
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	resp, err := w.client.Post(w.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
