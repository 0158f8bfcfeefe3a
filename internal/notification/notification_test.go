package notification

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type captureNotifier struct {
	name    string
	enabled bool
	sent    []*Notification
	err     error
}

func (c *captureNotifier) Send(n *Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

func (c *captureNotifier) Name() string    { return c.name }
func (c *captureNotifier) IsEnabled() bool { return c.enabled }

func TestManagerFansOutToEnabledProviders(t *testing.T) {
	m := NewManager(true)
	on := &captureNotifier{name: "on", enabled: true}
	off := &captureNotifier{name: "off", enabled: false}
	m.AddNotifier(on)
	m.AddNotifier(off)

	if err := m.SendAdvice("BTCUSDT", "long", "long", "both_long", "high"); err != nil {
		t.Fatalf("SendAdvice() error = %v", err)
	}

	if len(on.sent) != 1 {
		t.Fatalf("enabled provider got %d notifications, want 1", len(on.sent))
	}
	if len(off.sent) != 0 {
		t.Errorf("disabled provider got %d notifications, want 0", len(off.sent))
	}

	n := on.sent[0]
	if n.Type != NotifyAdvice {
		t.Errorf("type = %s, want %s", n.Type, NotifyAdvice)
	}
	if n.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q", n.Symbol)
	}
	if n.Extra["alignment_type"] != "both_long" {
		t.Errorf("alignment_type = %v", n.Extra["alignment_type"])
	}
	if n.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestDisabledManagerSendsNothing(t *testing.T) {
	m := NewManager(false)
	c := &captureNotifier{name: "c", enabled: true}
	m.AddNotifier(c)

	if err := m.SendConflict("ETHUSDT", "conflict_long_short", "no_trade"); err != nil {
		t.Fatalf("SendConflict() error = %v", err)
	}
	if len(c.sent) != 0 {
		t.Errorf("disabled manager delivered %d notifications", len(c.sent))
	}
}

func TestSendDataSourceMessages(t *testing.T) {
	m := NewManager(true)
	c := &captureNotifier{name: "c", enabled: true}
	m.AddNotifier(c)

	m.SendDataSource("binance", false, "circuit open")
	m.SendDataSource("binance", true, "")

	if len(c.sent) != 2 {
		t.Fatalf("got %d notifications, want 2", len(c.sent))
	}
	if c.sent[0].Title != "Data source down" {
		t.Errorf("title = %q", c.sent[0].Title)
	}
	if c.sent[1].Title != "Data source recovered" {
		t.Errorf("title = %q", c.sent[1].Title)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{WebhookURL: srv.URL, Enabled: true})
	if !n.IsEnabled() {
		t.Fatal("webhook notifier should be enabled")
	}

	err := n.Send(&Notification{
		Type:    NotifyConflict,
		Title:   "Horizon conflict: SOLUSDT",
		Message: "conflict_short_long, recommended action: no_trade",
		Symbol:  "SOLUSDT",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got["symbol"] != "SOLUSDT" {
		t.Errorf("posted symbol = %v", got["symbol"])
	}
	if got["type"] != "conflict" {
		t.Errorf("posted type = %v", got["type"])
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{WebhookURL: srv.URL, Enabled: true})
	if err := n.Send(&Notification{Type: NotifyInfo, Title: "t"}); err == nil {
		t.Error("Send() succeeded against a 500, want error")
	}
}

func TestWebhookNotifierDisabledWithoutURL(t *testing.T) {
	n := NewWebhookNotifier(WebhookConfig{Enabled: true})
	if n.IsEnabled() {
		t.Error("notifier enabled without a URL")
	}
}

func TestLogNotifierAlwaysEnabled(t *testing.T) {
	n := NewLogNotifier(nil)
	if !n.IsEnabled() {
		t.Error("log notifier should always be enabled")
	}
	if err := n.Send(&Notification{Type: NotifyInfo, Title: "startup"}); err != nil {
		t.Errorf("Send() error = %v", err)
	}
}
