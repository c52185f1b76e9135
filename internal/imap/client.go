package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// dialTimeout bounds how long a connection attempt may hang on an
// unresponsive host before it counts as a connection failure.
const dialTimeout = 5 * time.Second

// Config describes how to reach and authenticate one IMAP endpoint.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS selects an implicit-TLS connection. Plaintext is only meant for
	// servers on loopback, like the in-memory test server.
	TLS bool
	// InsecureSkipVerify disables certificate verification. Host discovery
	// probes guessed hostnames whose certificates often do not match, and
	// only cares whether something speaks IMAP there.
	InsecureSkipVerify bool
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// ConnectError reports a transport-level failure: DNS, refused, timeout or
// TLS. The host does not (reachably) speak IMAP.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("could not connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError reports that the server answered but rejected the credentials.
// For host discovery this is a positive signal: the host exists and speaks
// IMAP.
type AuthError struct {
	Addr string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Addr, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// dial establishes the transport connection described by cfg.
func dial(cfg Config) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}

	if !cfg.TLS {
		c, err := client.DialWithDialer(dialer, cfg.Addr())
		if err != nil {
			return nil, &ConnectError{Addr: cfg.Addr(), Err: err}
		}
		return c, nil
	}

	tlsConfig := &tls.Config{
		ServerName:         cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	c, err := client.DialWithDialerTLS(dialer, cfg.Addr(), tlsConfig)
	if err != nil {
		return nil, &ConnectError{Addr: cfg.Addr(), Err: err}
	}
	return c, nil
}
