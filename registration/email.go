package registration

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/mail"
	"github.com/google/uuid"
)

//go:embed templates
var templates embed.FS

// RefundAlert describes a captured payment that did not lead to a
// registration and has to be refunded by hand.
type RefundAlert struct {
	CorrelationID   string
	EventID         uuid.UUID
	CohouseID       string
	PaymentIntentID string
	AmountCents     int64
	Currency        string
	Reason          string
}

var templateFuncs = map[string]any{
	"money": func(cents int64, currency string) string {
		return money.New(cents, currency).Display()
	},
	"date": func(t time.Time) string {
		return t.Format("Monday, 2 January 2006 15:04")
	},
}

func ConfirmationEmail(fromAddress, toAddress string, event events.Event, record Record) (mail.Email, error) {
	data := map[string]any{
		"Event":    event,
		"Record":   record,
		"Currency": event.Currency(),
	}

	htmlBody, err := renderHTML("registration-confirmation.tmpl", data)
	if err != nil {
		return mail.Email{}, err
	}
	textBody, err := renderText("registration-confirmation-textonly.tmpl", data)
	if err != nil {
		return mail.Email{}, err
	}

	return mail.Email{
		FromAddress: fromAddress,
		ToAddresses: []string{toAddress},
		Subject:     fmt.Sprintf("Registration confirmed - %q", event.Name),
		HTMLBody:    htmlBody,
		TextBody:    textBody,
	}, nil
}

func RefundAlertEmail(fromAddress, toAddress string, alert RefundAlert) (mail.Email, error) {
	textBody, err := renderText("refund-required.tmpl", alert)
	if err != nil {
		return mail.Email{}, err
	}

	return mail.Email{
		FromAddress: fromAddress,
		ToAddresses: []string{toAddress},
		Subject:     fmt.Sprintf("Refund required - payment %s", alert.PaymentIntentID),
		TextBody:    textBody,
	}, nil
}

func renderHTML(name string, data any) (string, error) {
	tmpl, err := htmltemplate.New(name).Funcs(templateFuncs).ParseFS(templates, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return buf.String(), nil
}

func renderText(name string, data any) (string, error) {
	tmpl, err := texttemplate.New(name).Funcs(templateFuncs).ParseFS(templates, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return buf.String(), nil
}
