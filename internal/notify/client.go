package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// NoGoMessage announces a committed NO-GO report.
type NoGoMessage struct {
	OrgName    string
	ReportID   string
	PilotEmail string
	ProjectTag string
	Reasons    []string
	Window     string
	ReportURL  string
}

// OverrideMessage announces an override applied to a NO-GO report.
type OverrideMessage struct {
	OrgName     string
	ReportID    string
	ApprovedBy  string
	Reason      string
	HasEvidence bool
	ReportURL   string
}

// ExpiryMessage announces an organisation registration that has expired or
// is about to.
type ExpiryMessage struct {
	OrgName    string
	OperatorID string
	ExpiryDate string
	DaysLeft   int
}

// Client handles Slack webhook notifications
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	onFailure  func()
}

// NewClient creates a new Slack client with the specified timeout. onFailure
// may be nil; it is called once for every notification that was not delivered.
func NewClient(timeoutMS int, onFailure func()) *Client {
	if onFailure == nil {
		onFailure = func() {}
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		timeout:   time.Duration(timeoutMS) * time.Millisecond,
		onFailure: onFailure,
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// PostNoGo sends a NO-GO notification. Like every Post method it never
// returns an error: failures are logged at WARN so that a broken webhook
// cannot fail the report commit that triggered it.
func (c *Client) PostNoGo(ctx context.Context, webhookURL string, msg NoGoMessage) {
	c.post(ctx, webhookURL, "no_go", msg.ReportID, buildNoGoText(msg))
}

// PostOverride sends an override notification.
func (c *Client) PostOverride(ctx context.Context, webhookURL string, msg OverrideMessage) {
	c.post(ctx, webhookURL, "override", msg.ReportID, buildOverrideText(msg))
}

// PostExpiry sends an organisation expiry notification.
func (c *Client) PostExpiry(ctx context.Context, webhookURL string, msg ExpiryMessage) {
	c.post(ctx, webhookURL, "expiry", msg.OrgName, buildExpiryText(msg))
}

func (c *Client) post(ctx context.Context, webhookURL, kind, subject, text string) {
	if webhookURL == "" {
		return
	}

	jsonData, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		c.fail(err, kind, subject, "Failed to marshal Slack payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		c.fail(err, kind, subject, "Failed to create Slack request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeoutError(err) {
			log.Warn().
				Err(err).
				Dur("timeout_ms", c.timeout).
				Str("kind", kind).
				Str("subject", subject).
				Msg("Slack notification timed out")
			c.onFailure()
			return
		}
		c.fail(err, kind, subject, "Failed to send Slack notification")
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.failStatus(resp.StatusCode, kind, subject, "Slack webhook returned client error (4xx)")
		return
	case resp.StatusCode >= 500:
		c.failStatus(resp.StatusCode, kind, subject, "Slack webhook returned server error (5xx)")
		return
	case resp.StatusCode != http.StatusOK:
		c.failStatus(resp.StatusCode, kind, subject, "Slack webhook returned unexpected status code")
		return
	}

	log.Info().
		Str("kind", kind).
		Str("subject", subject).
		Msg("Slack notification sent successfully")
}

func (c *Client) fail(err error, kind, subject, msg string) {
	log.Warn().Err(err).Str("kind", kind).Str("subject", subject).Msg(msg)
	c.onFailure()
}

func (c *Client) failStatus(status int, kind, subject, msg string) {
	log.Warn().Int("status_code", status).Str("kind", kind).Str("subject", subject).Msg(msg)
	c.onFailure()
}

func buildNoGoText(msg NoGoMessage) string {
	text := fmt.Sprintf(
		"⛔ *NO-GO flight decision*\n\n"+
			"*Organisation:* %s\n"+
			"*Pilot:* %s\n"+
			"*Window:* %s\n",
		msg.OrgName,
		msg.PilotEmail,
		msg.Window,
	)
	if msg.ProjectTag != "" {
		text += fmt.Sprintf("*Project:* %s\n", msg.ProjectTag)
	}
	if len(msg.Reasons) > 0 {
		text += "\n"
		for _, r := range msg.Reasons {
			text += "• " + r + "\n"
		}
	}
	if msg.ReportURL != "" {
		text += fmt.Sprintf("\n<%s|View report>", msg.ReportURL)
	}
	return text
}

func buildOverrideText(msg OverrideMessage) string {
	evidence := "none"
	if msg.HasEvidence {
		evidence = "attached"
	}
	text := fmt.Sprintf(
		"⚠️ *NO-GO decision overridden*\n\n"+
			"*Organisation:* %s\n"+
			"*Approved by:* %s\n"+
			"*Reason:* %s\n"+
			"*Evidence:* %s\n",
		msg.OrgName,
		msg.ApprovedBy,
		msg.Reason,
		evidence,
	)
	if msg.ReportURL != "" {
		text += fmt.Sprintf("\n<%s|View report>", msg.ReportURL)
	}
	return text
}

func buildExpiryText(msg ExpiryMessage) string {
	status := fmt.Sprintf("expires in %d days", msg.DaysLeft)
	if msg.DaysLeft < 0 {
		status = fmt.Sprintf("expired %d days ago", -msg.DaysLeft)
	}
	return fmt.Sprintf(
		"📅 *Operator registration %s*\n\n"+
			"*Organisation:* %s\n"+
			"*Operator ID:* %s\n"+
			"*Expiry date:* %s",
		status,
		msg.OrgName,
		msg.OperatorID,
		msg.ExpiryDate,
	)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
