package imap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/imapvault/server/internal/logging"
)

// probePassword is the deliberately wrong credential used for discovery
// probes. A host that answers with an authentication rejection exists and
// speaks IMAP, which is all discovery wants to know.
const probePassword = "imapvault-probe"

// Discoverer guesses the IMAP host for an email domain when an account does
// not name one explicitly. It is best-effort by contract: it never fails,
// it only falls back.
type Discoverer struct {
	connect func(Config) (*Session, error)
	port    int
	l       *logrus.Logger
}

func NewDiscoverer() *Discoverer {
	return &Discoverer{
		connect: Connect,
		port:    993,
		l:       logging.Logger(logging.IMAP),
	}
}

// DiscoverHost probes imap.<domain>, mail.<domain> and <domain> in order and
// returns the first candidate that answers with an authentication-style
// rejection. Connection-level failures (DNS, refused, timeout, TLS) rule a
// candidate out. When nothing answers, it falls back to imap.<domain>.
func (d *Discoverer) DiscoverHost(email string) string {
	_, domain, found := strings.Cut(email, "@")
	if !found || domain == "" {
		return ""
	}

	fallback := "imap." + domain
	candidates := []string{fallback, "mail." + domain, domain}

	d.l.WithField("domain", domain).Info("Discovering IMAP host")

	for _, host := range candidates {
		if d.probe(host, email) {
			d.l.WithField("host", host).Info("Discovered IMAP host")
			return host
		}
	}

	d.l.WithField("host", fallback).Info("Discovery found nothing, falling back")
	return fallback
}

// probe reports whether the candidate host answers like an IMAP server.
func (d *Discoverer) probe(host, email string) bool {
	session, err := d.connect(Config{
		Host:               host,
		Port:               d.port,
		Username:           email,
		Password:           probePassword,
		TLS:                true,
		InsecureSkipVerify: true,
	})
	if err == nil {
		// The throwaway credential was somehow accepted. The host clearly
		// speaks IMAP; drop the session and use it.
		session.Close()
		return true
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}

	d.l.WithField("host", host).Debug(fmt.Sprintf("Candidate ruled out: %v", err))
	return false
}
