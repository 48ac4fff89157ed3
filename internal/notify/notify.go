// Package notify sends staff and customer email notifications.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/currency"
	"github.com/epicdeals/instant-offer/internal/model"
)

const divider = "----------------------------------------"

// Config holds SMTP settings. An empty Host disables sending; every
// method becomes a logged no-op so local runs work without a mail server.
type Config struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	Username   string `yaml:"username" mapstructure:"username"`
	Password   string `yaml:"password" mapstructure:"password"`
	StaffEmail string `yaml:"staff_email" mapstructure:"staff_email"`
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer formats and sends the service's notification emails.
type Mailer struct {
	cfg  Config
	send sendFunc
	now  func() time.Time
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithSendFunc replaces the SMTP transport. Used in tests.
func WithSendFunc(fn sendFunc) Option {
	return func(m *Mailer) {
		m.send = fn
	}
}

// WithClock fixes the timestamp rendered into email bodies.
func WithClock(now func() time.Time) Option {
	return func(m *Mailer) {
		m.now = now
	}
}

// NewMailer creates a Mailer for the given SMTP config.
func NewMailer(cfg Config, opts ...Option) *Mailer {
	m := &Mailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SendReviewRequest emails staff a manual-review request for a queued item.
func (m *Mailer) SendReviewRequest(item *model.ReviewItem) error {
	subject := fmt.Sprintf("Manual Review Required: %s", item.Product.DisplayName())

	var b strings.Builder
	fmt.Fprintf(&b, "MANUAL REVIEW REQUIRED\nGenerated: %s\n\n", m.now().Format("2006-01-02 15:04:05"))

	b.WriteString(divider + "\nCUSTOMER INFORMATION\n" + divider + "\n\n")
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\nPhone: %s\n\n",
		orNotProvided(item.Contact.Name), orNotProvided(item.Contact.Email), orNotProvided(item.Contact.Phone))

	b.WriteString(divider + "\nPRODUCT INFORMATION\n" + divider + "\n\n")
	writeProduct(&b, item.Product)

	if item.Preliminary != nil {
		o := item.Preliminary
		b.WriteString("\n" + divider + "\nAUTOMATED ANALYSIS\n" + divider + "\n\n")
		fmt.Fprintf(&b, "Reason for Review: %s\n", o.Reason)
		fmt.Fprintf(&b, "Confidence Score: %.0f%%\n\n", o.Confidence*100)
		fmt.Fprintf(&b, "Market Value (Estimated): %s\n", currency.FormatZAR(o.MarketValue))
		fmt.Fprintf(&b, "Repair Costs (Estimated): %s\n", currency.FormatZAR(o.RepairDeduction))
		fmt.Fprintf(&b, "Suggested Offer: %s\n", currency.FormatZAR(o.SellNowAmount))

		if o.Research != nil {
			b.WriteString("\n" + divider + "\nPRICE RESEARCH RESULTS\n" + divider + "\n\n")
			fmt.Fprintf(&b, "Sources Checked: %s\n", strings.Join(o.Research.SourcesChecked, ", "))
			fmt.Fprintf(&b, "Total Listings Found: %d\n", len(o.Research.Observations))
		}
	}

	if item.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", item.Notes)
	}
	fmt.Fprintf(&b, "\nSLA Deadline: %s\n", item.SLADeadline.Format("2006-01-02 15:04"))
	b.WriteString("\nPlease review and contact the customer with your offer.\n")

	return m.deliver(m.cfg.StaffEmail, subject, b.String())
}

// SendCustomerOffer emails the offer summary to the customer.
func (m *Mailer) SendCustomerOffer(to string, offer *model.OfferResult, p model.ProductRecord) error {
	subject := fmt.Sprintf("Your EpicDeals Offer: %s", currency.FormatZAR(offer.SellNowAmount))

	var b strings.Builder
	b.WriteString("Hi there!\n\nThank you for using the EpicDeals instant valuation tool.\n\n")
	b.WriteString("Based on our market research, here's what we found:\n\n")

	b.WriteString(divider + "\nYOUR ITEM\n" + divider + "\n\n")
	fmt.Fprintf(&b, "%s\nCondition: %s\n\n", p.DisplayName(), p.Condition)

	b.WriteString(divider + "\nOUR OFFER\n" + divider + "\n\n")
	fmt.Fprintf(&b, "Market Value: %s\n", currency.FormatZAR(offer.MarketValue))
	if offer.RepairDeduction > 0 {
		fmt.Fprintf(&b, "Repair Costs: -%s\n", currency.FormatZAR(offer.RepairDeduction))
	}
	fmt.Fprintf(&b, "\nYOUR OFFER: %s\n\n", currency.FormatZAR(offer.SellNowAmount))

	b.WriteString(divider + "\n\nThis offer is valid for 48 hours.\n\n")
	fmt.Fprintf(&b, "To accept this offer or ask any questions, please reply to this email or contact us at %s.\n", m.cfg.StaffEmail)
	b.WriteString("\nVisit us: www.epicdeals.co.za\n\nThank you!\nEpicDeals Team\n")

	return m.deliver(to, subject, b.String())
}

// SendPriceDispute emails staff a customer's pricing counter-claim.
func (m *Mailer) SendPriceDispute(p model.ProductRecord, ourEstimate, userEstimate float64, justification string, links []string, c model.Contact) error {
	subject := fmt.Sprintf("PRICE DISPUTE: %s - User thinks %s vs Our %s",
		p.DisplayName(), currency.FormatZARWhole(userEstimate), currency.FormatZARWhole(ourEstimate))

	var b strings.Builder
	fmt.Fprintf(&b, "PRICE DISPUTE REQUEST\nGenerated: %s\n\n", m.now().Format("2006-01-02 15:04:05"))

	b.WriteString(divider + "\nPRICING DISCREPANCY\n" + divider + "\n\n")
	fmt.Fprintf(&b, "Our Automated Estimate: %s\n", currency.FormatZAR(ourEstimate))
	fmt.Fprintf(&b, "User's Estimate: %s\n", currency.FormatZAR(userEstimate))
	diff := userEstimate - ourEstimate
	if ourEstimate > 0 {
		fmt.Fprintf(&b, "Difference: %s (%.1f%%)\n\n", currency.FormatZAR(abs(diff)), diff/ourEstimate*100)
	}

	b.WriteString(divider + "\nCUSTOMER INFORMATION\n" + divider + "\n\n")
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\nPhone: %s\n\n",
		orNotProvided(c.Name), orNotProvided(c.Email), orNotProvided(c.Phone))

	b.WriteString(divider + "\nPRODUCT INFORMATION\n" + divider + "\n\n")
	writeProduct(&b, p)

	b.WriteString("\n" + divider + "\nUSER'S JUSTIFICATION\n" + divider + "\n\n")
	if justification == "" {
		justification = "No justification provided"
	}
	b.WriteString(justification + "\n\n")

	b.WriteString(divider + "\nUSER-PROVIDED LINKS\n" + divider + "\n\n")
	if len(links) == 0 {
		b.WriteString("No links provided\n")
	}
	for i, link := range links {
		fmt.Fprintf(&b, "%d. %s\n", i+1, link)
	}

	b.WriteString("\n" + divider + "\n\nACTION REQUIRED:\n")
	b.WriteString("1. Review the user's estimate and evidence\n")
	b.WriteString("2. Check the provided links\n")
	b.WriteString("3. Verify our automated pricing\n")
	b.WriteString("4. Contact the user with revised offer or explanation\n")

	return m.deliver(m.cfg.StaffEmail, subject, b.String())
}

func (m *Mailer) deliver(to, subject, body string) error {
	if m.cfg.Host == "" {
		zap.L().Debug("email disabled, skipping send",
			zap.String("to", to), zap.String("subject", subject))
		return nil
	}
	if to == "" {
		return eris.New("notify: no recipient address")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.Username)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.send(addr, auth, m.cfg.Username, []string{to}, []byte(msg.String())); err != nil {
		return eris.Wrapf(err, "notify: send to %s", to)
	}

	zap.L().Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func writeProduct(b *strings.Builder, p model.ProductRecord) {
	fmt.Fprintf(b, "Category: %s\n", orUnknown(p.Category))
	fmt.Fprintf(b, "Brand: %s\n", orUnknown(p.Brand))
	fmt.Fprintf(b, "Model: %s\n", orUnknown(p.Model))
	if specs := p.MeaningfulSpecs(); len(specs) > 0 {
		parts := make([]string, 0, len(specs))
		for k, v := range specs {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
		fmt.Fprintf(b, "Specifications: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(b, "Condition: %s\n", orUnknown(p.Condition))
}

func orNotProvided(s string) string {
	if s == "" {
		return "Not provided"
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
