package common

// EmailSender is the outbound mail seam. Production wires an SMTP or provider
// implementation; notifications only depend on this interface.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is one captured message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail records messages instead of sending them. Tests inspect Outbox.
type InMemoryEmail struct {
	Outbox []Email
}

func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender discards everything. Used when NOTIFY_EMAIL_ENABLED is off.
type NopEmailSender struct{}

func (NopEmailSender) Send(string, string, string) error { return nil }
