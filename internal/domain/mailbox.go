package domain

import "strings"

// Mailbox holds the provider and IMAP/SMTP settings shared by campaigns and submissions.
type Mailbox struct {
	Provider string `gorm:"type:varchar(100);default:gmail" bson:"provider" json:"provider"`
	IMAPHost string `gorm:"type:varchar(255)" bson:"imapHost,omitempty" json:"imapHost,omitempty"`
	IMAPPort int    `bson:"imapPort,omitempty" json:"imapPort,omitempty"`
	SMTPHost string `gorm:"type:varchar(255)" bson:"smtpHost,omitempty" json:"smtpHost,omitempty"`
	SMTPPort int    `bson:"smtpPort,omitempty" json:"smtpPort,omitempty"`
	UseSSL   bool   `gorm:"default:true" bson:"useSsl" json:"useSsl"`
}

type providerDefaults struct {
	imapHost string
	smtpHost string
}

// Well-known providers. All of them use 993 for IMAP over SSL and 587 for SMTP submission.
var knownProviders = map[string]providerDefaults{
	"gmail":   {imapHost: "imap.gmail.com", smtpHost: "smtp.gmail.com"},
	"outlook": {imapHost: "outlook.office365.com", smtpHost: "smtp.office365.com"},
	"yahoo":   {imapHost: "imap.mail.yahoo.com", smtpHost: "smtp.mail.yahoo.com"},
	"zoho":    {imapHost: "imap.zoho.com", smtpHost: "smtp.zoho.com"},
}

const (
	DefaultProvider = "gmail"
	defaultIMAPPort = 993
	defaultSMTPPort = 587
)

// ApplyProviderDefaults fills empty host/port fields for well-known providers.
// Values the user set explicitly are never overwritten.
func (m *Mailbox) ApplyProviderDefaults() {
	m.Provider = strings.ToLower(strings.TrimSpace(m.Provider))
	if m.Provider == "" {
		m.Provider = DefaultProvider
	}
	d, ok := knownProviders[m.Provider]
	if !ok {
		return
	}
	if m.IMAPHost == "" {
		m.IMAPHost = d.imapHost
	}
	if m.IMAPPort == 0 {
		m.IMAPPort = defaultIMAPPort
	}
	if m.SMTPHost == "" {
		m.SMTPHost = d.smtpHost
	}
	if m.SMTPPort == 0 {
		m.SMTPPort = defaultSMTPPort
	}
}
