package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/asg-shop/api/internal/domain"
	"github.com/asg-shop/api/internal/platform/config"
)

// ErrNotConfigured indicates the requested email kind has no configuration.
var ErrNotConfigured = errors.New("email: not configured")

// mailClient is the slice of the SendGrid client the sender uses.
type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Option customises a SendGridSender.
type Option func(*SendGridSender)

// WithMailClient substitutes the SendGrid client, primarily for tests.
func WithMailClient(client mailClient) Option {
	return func(s *SendGridSender) {
		if client != nil {
			s.client = client
		}
	}
}

// SendGridSender delivers receipts and operator pick tickets through the
// SendGrid v3 API. Receipts render a dynamic template; pick tickets are plain
// text addressed to the configured operator mailbox.
type SendGridSender struct {
	client            mailClient
	from              *mail.Email
	receiptTemplateID string
	receiptBCC        string
	pickTicketAddress string
}

// NewSendGridSender constructs a sender from the email configuration.
func NewSendGridSender(cfg config.EmailConfig, opts ...Option) (*SendGridSender, error) {
	if strings.TrimSpace(cfg.FromAddress) == "" {
		return nil, errors.New("email: from address is required")
	}

	sender := &SendGridSender{
		from:              mail.NewEmail(cfg.FromName, cfg.FromAddress),
		receiptTemplateID: cfg.ReceiptTemplateID,
		receiptBCC:        cfg.ReceiptBCCAddress,
		pickTicketAddress: cfg.PickTicketAddress,
	}
	for _, opt := range opts {
		opt(sender)
	}
	if sender.client == nil {
		if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
			return nil, errors.New("email: sendgrid api key is required")
		}
		sender.client = sendgrid.NewSendClient(cfg.SendGridAPIKey)
	}
	return sender, nil
}

// SendReceipt emails the customer a templated receipt, with a copy blind
// carbonned to the store when configured.
func (s *SendGridSender) SendReceipt(ctx context.Context, order domain.Order) error {
	if s == nil || s.client == nil {
		return errors.New("email sender not initialised")
	}
	if order.Email == "" {
		return fmt.Errorf("%w: order %s has no email address", ErrNotConfigured, order.OrderID)
	}
	if s.receiptTemplateID == "" {
		return fmt.Errorf("%w: no receipt template", ErrNotConfigured)
	}

	m := mail.NewV3Mail()
	m.SetFrom(s.from)
	m.SetTemplateID(s.receiptTemplateID)

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail(recipientName(order), order.Email))
	if s.receiptBCC != "" && !strings.EqualFold(s.receiptBCC, order.Email) {
		personalization.AddBCCs(mail.NewEmail("", s.receiptBCC))
	}
	for key, value := range receiptTemplateData(order) {
		personalization.SetDynamicTemplateData(key, value)
	}
	m.AddPersonalizations(personalization)

	return s.send(ctx, m)
}

// SendPickTicket emails the operator mailbox the lines to pull for an
// in-store pickup order.
func (s *SendGridSender) SendPickTicket(ctx context.Context, order domain.Order) error {
	if s == nil || s.client == nil {
		return errors.New("email sender not initialised")
	}
	if s.pickTicketAddress == "" {
		return fmt.Errorf("%w: no pick ticket address", ErrNotConfigured)
	}

	subject := fmt.Sprintf("Pick ticket for order %s", order.OrderID)
	to := mail.NewEmail("", s.pickTicketAddress)
	body := pickTicketBody(order)

	m := mail.NewSingleEmail(s.from, subject, to, body, "<pre>"+body+"</pre>")
	return s.send(ctx, m)
}

func (s *SendGridSender) send(ctx context.Context, m *mail.SGMailV3) error {
	response, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("email: send: sendgrid status %d: %s", response.StatusCode, strings.TrimSpace(response.Body))
	}
	return nil
}

// receiptTemplateData shapes the order for the dynamic receipt template.
func receiptTemplateData(order domain.Order) map[string]any {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":   item.DisplayName,
			"amount": FormatAmount(domain.Cents(item.Amount)),
		})
	}

	data := map[string]any{
		"orderId":        order.OrderID,
		"orderDate":      order.CreatedAt.Format("January 2, 2006"),
		"items":          items,
		"subtotal":       FormatAmount(order.Subtotal),
		"tax":            FormatAmount(order.Tax),
		"shipping":       FormatAmount(order.ShippingCost),
		"total":          FormatAmount(order.Total),
		"paidWithCredit": order.PaidInFullWithCredit,
		"pickup":         order.Pickup,
	}
	if order.Credit > 0 {
		data["credit"] = FormatAmount(order.Credit)
	}
	if order.TransactionRef != "" {
		data["transactionRef"] = order.TransactionRef
	}
	if order.Address != nil {
		data["shipTo"] = map[string]any{
			"name":    order.Address.Name,
			"street1": order.Address.Street1,
			"street2": order.Address.Street2,
			"city":    order.Address.City,
			"state":   order.Address.State,
			"zip":     order.Address.Zip,
			"country": order.Address.Country,
		}
	}
	return data
}

func pickTicketBody(order domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n", order.OrderID)
	if order.Email != "" {
		fmt.Fprintf(&b, "Customer: %s\n", order.Email)
	}
	b.WriteString("\nItems to pull:\n")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  - %s", item.DisplayName)
		if item.ID != "" {
			fmt.Fprintf(&b, " (%s)", item.ID)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nTotal due at pickup: %s\n", FormatAmount(order.Total))
	return b.String()
}

func recipientName(order domain.Order) string {
	if order.Address != nil && order.Address.Name != "" {
		return order.Address.Name
	}
	return ""
}

var usd = message.NewPrinter(language.AmericanEnglish)

// FormatAmount renders integer cents as a localized US dollar string.
func FormatAmount(cents int64) string {
	return usd.Sprintf("%v", currency.Symbol(currency.USD.Amount(domain.Dollars(cents))))
}
