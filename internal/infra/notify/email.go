package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
)

type Config struct {
	SMTPServer string
	SMTPPort   int
	Sender     string
	Password   string
	Recipient  string
	PublicURL  string
}

// Enabled reports whether sender, password and recipient are all set.
func (c Config) Enabled() bool {
	return c.Sender != "" && c.Password != "" && c.Recipient != ""
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends one plain-text message per accepted response.
type EmailNotifier struct {
	cfg    Config
	schema *domain.Schema
	send   SendFunc
	log    *zap.Logger
}

func NewEmailNotifier(cfg Config, schema *domain.Schema, log *zap.Logger) *EmailNotifier {
	if cfg.SMTPServer == "" {
		cfg.SMTPServer = "smtp.gmail.com"
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	return &EmailNotifier{cfg: cfg, schema: schema, send: smtp.SendMail, log: log}
}

// WithSender replaces the SMTP transport.
func (n *EmailNotifier) WithSender(send SendFunc) *EmailNotifier {
	n.send = send
	return n
}

func (n *EmailNotifier) Name() string { return "email" }

// Deliver sends the notification. smtp.SendMail is not context aware, so a
// cancelled ctx returns early and the send finishes in the background.
func (n *EmailNotifier) Deliver(ctx context.Context, r *domain.Response) error {
	addr := net.JoinHostPort(n.cfg.SMTPServer, strconv.Itoa(n.cfg.SMTPPort))
	auth := smtp.PlainAuth("", n.cfg.Sender, n.cfg.Password, n.cfg.SMTPServer)
	msg := n.compose(r)

	errc := make(chan error, 1)
	go func() {
		errc <- n.send(addr, auth, n.cfg.Sender, []string{n.cfg.Recipient}, msg)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		n.log.Info("email notification sent",
			zap.String("submission_id", string(r.ID)),
			zap.String("participant_id", r.Participant.ParticipantID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) compose(r *domain.Response) []byte {
	title := strings.ToUpper(n.schema.Name())
	p := r.Participant

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(n.cfg.Sender))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(n.cfg.Recipient))
	fmt.Fprintf(&b, "Subject: New %s Survey Response - %s\r\n", headerValue(title), headerValue(p.ParticipantID))
	fmt.Fprintf(&b, "Date: %s\r\n", r.SubmittedAt.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "New %s Survey Response Received!\r\n\r\n", title)
	b.WriteString("Participant Details:\r\n")
	fmt.Fprintf(&b, "- ID: %s\r\n", p.ParticipantID)
	fmt.Fprintf(&b, "- Age: %s\r\n", orNotProvided(p.Age))
	fmt.Fprintf(&b, "- Gender: %s\r\n", orNotProvided(p.Gender))
	fmt.Fprintf(&b, "- Education: %s\r\n", orNotProvided(p.Education))
	fmt.Fprintf(&b, "- Submission Time: %s\r\n", r.SubmittedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Submission ID: %s\r\n\r\n", r.ID)

	fmt.Fprintf(&b, "%s Scores:\r\n", title)
	fmt.Fprintf(&b, "- Total Score: %d/%d\r\n", r.Scores.Total, n.schema.MaxTotal())
	fmt.Fprintf(&b, "- Average: %.2f over %d answers\r\n", r.Scores.Average, r.Scores.Scored)
	for _, sub := range n.schema.Subscales() {
		fmt.Fprintf(&b, "- %s: %d/%d\r\n", titleCase(sub), r.Scores.Subscales[sub], n.schema.SubscaleMax(sub))
	}

	if n.cfg.PublicURL != "" {
		fmt.Fprintf(&b, "\r\nView all responses at: %s/stats\r\n", strings.TrimRight(n.cfg.PublicURL, "/"))
	}
	return []byte(b.String())
}

// headerValue strips CR and LF so user data cannot inject headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func orNotProvided(s string) string {
	if s == "" {
		return "Not provided"
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
