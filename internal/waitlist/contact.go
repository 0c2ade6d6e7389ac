package waitlist

import (
	"net/mail"
	"strings"
	"unicode"

	"academy/internal/notifications"
)

// Normalize trims both fields and canonicalises the phone number and email address
func (c Contact) Normalize() Contact {
	return Contact{
		Phone: NormalizePhone(c.Phone),
		Email: normalizeEmail(c.Email),
	}
}

// normalizeEmail reduces "<a@b.com>" to the bare address. Input with a display name
// is left as is so Validate rejects it.
func normalizeEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	if addr, err := mail.ParseAddress(raw); err == nil && addr.Name == "" {
		raw = addr.Address
	}
	return strings.ToLower(raw)
}

// Validate requires at least one usable channel
func (c Contact) Validate() error {
	if c.Phone == "" && c.Email == "" {
		return ErrInvalidContact
	}
	if c.Phone != "" && len(strings.TrimPrefix(c.Phone, "+")) < 7 {
		return ErrInvalidContact
	}
	if c.Email != "" {
		// senders take the stored value as a bare recipient address
		addr, err := mail.ParseAddress(c.Email)
		if err != nil || addr.Name != "" || addr.Address != c.Email {
			return ErrInvalidContact
		}
	}
	return nil
}

type route struct {
	channel notifications.Channel
	address string
}

// routes lists every channel. SMS first, email is the backup.
func (c Contact) routes() []route {
	var out []route
	if c.Phone != "" {
		out = append(out, route{notifications.ChannelSMS, c.Phone})
	}
	if c.Email != "" {
		out = append(out, route{notifications.ChannelEmail, c.Email})
	}
	return out
}

// preferredRoute is used for follow-ups, which go out once
func (c Contact) preferredRoute() []route {
	r := c.routes()
	if len(r) > 1 {
		return r[:1]
	}
	return r
}

// NormalizePhone keeps digits and a leading plus. Ten digit numbers are assumed to be US.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	out := b.String()
	if !strings.HasPrefix(out, "+") {
		switch len(out) {
		case 10:
			out = "+1" + out
		case 11:
			if out[0] == '1' {
				out = "+" + out
			}
		}
	}
	return out
}
