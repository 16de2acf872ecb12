package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"

	"github.com/daemonflow/daemonflow/internal/platform/resilience"
)

// Alerter sends an operator-facing notification when a workflow instance
// ends in WorkflowFatal (spec.md §4.5): an uncaught panic/error during
// WorkflowRunner.Run.
type Alerter interface {
	SendFatal(ctx context.Context, instanceID int64, workflowName, message string) error
}

// SendGridAlerter is adapted from
// internal/notification/adapters/sendgrid.SendGridProvider, narrowed from
// a general-purpose templated-email sender down to the one fixed message
// shape a fatal-workflow alert needs.
type SendGridAlerter struct {
	apiKey     string
	from       string
	to         string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewSendGridAlerter wraps outbound calls in a circuit breaker (grounded
// on internal/platform/resilience.CircuitBreaker) so a wave of fatal
// workflows hitting a down or rate-limiting SendGrid doesn't pile up
// blocked HTTP calls — it opens after 5 consecutive failures and retries
// after 30s.
func NewSendGridAlerter(apiKey, from, to string) *SendGridAlerter {
	return &SendGridAlerter{
		apiKey:     apiKey,
		from:       from,
		to:         to,
		httpClient: &http.Client{},
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("sendgrid-alerter")),
	}
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (a *SendGridAlerter) SendFatal(ctx context.Context, instanceID int64, workflowName, message string) error {
	return a.breaker.Execute(ctx, func() error {
		return a.sendFatal(ctx, instanceID, workflowName, message)
	})
}

func (a *SendGridAlerter) sendFatal(ctx context.Context, instanceID int64, workflowName, message string) error {
	body := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: a.to}}}},
		From:             sendGridAddress{Email: a.from},
		Subject:          fmt.Sprintf("workflow instance %d (%s) ended fatally", instanceID, workflowName),
		Content: []sendGridContent{
			{Type: "text/plain", Value: message},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notify: marshal sendgrid request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.sendgrid.com/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sendgrid request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

// SMTPAlerter is adapted from internal/notification/adapters/smtp.SMTPProvider:
// same header-building and net/smtp.SendMail/STARTTLS split, narrowed to a
// single fixed plain-text alert message.
type SMTPAlerter struct {
	Host, Username, Password, From, To string
	Port                               int
	UseTLS                             bool
}

func (a *SMTPAlerter) SendFatal(ctx context.Context, instanceID int64, workflowName, message string) error {
	addr := fmt.Sprintf("%s:%d", a.Host, a.Port)
	subject := fmt.Sprintf("workflow instance %d (%s) ended fatally", instanceID, workflowName)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		a.From, a.To, subject, message)

	var auth smtp.Auth
	if a.Username != "" {
		auth = smtp.PlainAuth("", a.Username, a.Password, a.Host)
	}

	if a.UseTLS {
		return a.sendTLS(addr, auth, []byte(msg))
	}
	return smtp.SendMail(addr, auth, a.From, []string{a.To}, []byte(msg))
}

func (a *SMTPAlerter) sendTLS(addr string, auth smtp.Auth, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: a.Host})
	if err != nil {
		return fmt.Errorf("notify: smtp tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, a.Host)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("notify: smtp auth: %w", err)
		}
	}
	if err := client.Mail(a.From); err != nil {
		return err
	}
	if err := client.Rcpt(a.To); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = w.Write(msg)
	return err
}
