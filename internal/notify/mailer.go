// Package notify sends transactional emails.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

const (
	BillingURL         = "https://saycal.app/app/billing"
	paymentFailedTitle = "Action requise : problème de paiement SayCal"
)

var paymentFailedTmpl = template.Must(template.New("payment_failed").Parse(`<!DOCTYPE html>
<html lang="fr">
<body style="font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;background:#f6f6f9;padding:24px">
  <div style="max-width:480px;margin:0 auto;background:#ffffff;border-radius:12px;padding:32px">
    <h1 style="font-size:20px;color:#111">Paiement échoué</h1>
    <p>Nous n'avons pas pu renouveler votre abonnement SayCal Premium.</p>
    <p>Pour continuer à profiter de la création vocale illimitée, veuillez mettre à jour vos informations de paiement.</p>
    <p style="text-align:center;margin:32px 0">
      <a href="{{.BillingURL}}" style="background:#B552D9;color:#fff;padding:12px 24px;border-radius:8px;text-decoration:none">Mettre à jour le paiement</a>
    </p>
    <p style="font-size:12px;color:#666">Sans action de votre part, votre abonnement sera suspendu dans 7 jours.</p>
  </div>
</body>
</html>`))

// Message is a rendered email ready to send.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// PaymentFailedMessage renders the payment-failed notice for to.
func PaymentFailedMessage(to string) (Message, error) {
	var buf bytes.Buffer
	if err := paymentFailedTmpl.Execute(&buf, struct{ BillingURL string }{BillingURL}); err != nil {
		return Message{}, fmt.Errorf("render payment failed email: %w", err)
	}
	return Message{To: to, Subject: paymentFailedTitle, HTML: buf.String()}, nil
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Mailer sends through Resend.
type Mailer struct {
	client *resend.Client
	from   string
	log    zerolog.Logger
}

// Option customises a Mailer.
type Option func(*Mailer)

// WithBaseURL points the client at another API host.
func WithBaseURL(raw string) Option {
	return func(m *Mailer) {
		if u, err := url.Parse(raw); err == nil {
			m.client.BaseURL = u
		}
	}
}

func NewMailer(apiKey, from string, log zerolog.Logger, opts ...Option) *Mailer {
	m := &Mailer{client: resend.NewClient(apiKey), from: from, log: log}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mailer) Send(ctx context.Context, msg Message) error {
	resp, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Info().Str("email_id", resp.Id).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

// PaymentFailed renders and sends the payment-failed notice right away.
func (m *Mailer) PaymentFailed(ctx context.Context, email string) error {
	msg, err := PaymentFailedMessage(email)
	if err != nil {
		return err
	}
	return m.Send(ctx, msg)
}
