// Package endpoint parses endpoint specifications such as "tcp://127.0.0.1:8529",
// "ssl://[::1]:8530" or "unix:///tmp/agency.sock" into the address family,
// encryption and address needed to bind or dial them.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8529
)

var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Domain is the address family of an endpoint
type Domain int

const (
	DomainUnknown Domain = iota
	DomainUnix
	DomainIPv4
	DomainIPv6
)

func (d Domain) String() string {
	switch d {
	case DomainUnix:
		return "unix"
	case DomainIPv4:
		return "ipv4"
	case DomainIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Encryption is the transport security of an endpoint
type Encryption int

const (
	EncryptionNone Encryption = iota
	EncryptionSSL
)

// Endpoint is a parsed, immutable endpoint specification
type Endpoint struct {
	Domain     Domain
	Encryption Encryption
	Host       string
	Port       int
	Path       string // unix domain only
}

// Default returns the endpoint used when none is configured
func Default() Endpoint {
	return Endpoint{
		Domain:     DomainIPv4,
		Encryption: EncryptionNone,
		Host:       DefaultHost,
		Port:       DefaultPort,
	}
}

// Parse turns a specification into an Endpoint. Accepted schemes are tcp, ssl
// and unix, optionally prefixed with "http+". A missing port defaults to 8529
// and an empty host to 127.0.0.1.
func Parse(spec string) (Endpoint, error) {
	s := trimScheme(strings.TrimSpace(spec), "http+")

	switch {
	case hasScheme(s, "unix://"):
		path := s[len("unix://"):]
		if path == "" {
			return Endpoint{}, fmt.Errorf("%w: %q: empty socket path", ErrInvalidEndpoint, spec)
		}
		return Endpoint{Domain: DomainUnix, Path: path}, nil
	case hasScheme(s, "tcp://"):
		return parseIP(spec, s[len("tcp://"):], EncryptionNone)
	case hasScheme(s, "ssl://"):
		return parseIP(spec, s[len("ssl://"):], EncryptionSSL)
	}
	return Endpoint{}, fmt.Errorf("%w: %q: unknown scheme", ErrInvalidEndpoint, spec)
}

// hasScheme compares byte-wise so that s is never re-encoded
func hasScheme(s, scheme string) bool {
	return len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme)
}

func trimScheme(s, scheme string) string {
	if hasScheme(s, scheme) {
		return s[len(scheme):]
	}
	return s
}

// MustParse is Parse for specifications known at compile time
func MustParse(spec string) Endpoint {
	ep, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return ep
}

func parseIP(spec, rest string, enc Encryption) (Endpoint, error) {
	ep := Endpoint{Domain: DomainIPv4, Encryption: enc, Host: DefaultHost, Port: DefaultPort}
	if strings.ContainsAny(rest, "/?#") {
		return Endpoint{}, fmt.Errorf("%w: %q: unexpected path", ErrInvalidEndpoint, spec)
	}
	if !isPrintableASCII(rest) {
		return Endpoint{}, fmt.Errorf("%w: %q: host must be ASCII", ErrInvalidEndpoint, spec)
	}

	var portStr string
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return Endpoint{}, fmt.Errorf("%w: %q: unterminated IPv6 address", ErrInvalidEndpoint, spec)
		}
		ep.Domain = DomainIPv6
		ep.Host = rest[1:end]
		after := rest[end+1:]
		if after != "" {
			if !strings.HasPrefix(after, ":") {
				return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, spec)
			}
			portStr = after[1:]
		}
		if ep.Host == "" {
			return Endpoint{}, fmt.Errorf("%w: %q: empty IPv6 address", ErrInvalidEndpoint, spec)
		}
	} else {
		switch strings.Count(rest, ":") {
		case 0:
			if rest != "" {
				ep.Host = rest
			}
		case 1:
			i := strings.Index(rest, ":")
			if rest[:i] != "" {
				ep.Host = rest[:i]
			}
			portStr = rest[i+1:]
		default:
			return Endpoint{}, fmt.Errorf("%w: %q: IPv6 addresses must be bracketed", ErrInvalidEndpoint, spec)
		}
	}

	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: %q: bad port %q", ErrInvalidEndpoint, spec, portStr)
		}
		ep.Port = port
	}
	return ep, nil
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

// IsSSL reports whether the endpoint requires TLS
func (e Endpoint) IsSSL() bool {
	return e.Encryption == EncryptionSSL
}

// Network returns the net package network name
func (e Endpoint) Network() string {
	if e.Domain == DomainUnix {
		return "unix"
	}
	return "tcp"
}

// Address returns the address to pass to net.Listen or net.Dial
func (e Endpoint) Address() string {
	if e.Domain == DomainUnix {
		return e.Path
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// HostString returns host:port, or "localhost" for unix sockets
func (e Endpoint) HostString() string {
	if e.Domain == DomainUnix {
		return "localhost"
	}
	return e.Address()
}

// Target returns a gRPC dial target
func (e Endpoint) Target() string {
	if e.Domain == DomainUnix {
		return "unix://" + e.Path
	}
	return e.Address()
}

// WithPort returns a copy with a different port; used once a ":0" listener has been bound
func (e Endpoint) WithPort(port int) Endpoint {
	e.Port = port
	return e
}

// Equal compares two endpoints by their canonical form
func (e Endpoint) Equal(o Endpoint) bool {
	return e.String() == o.String()
}

// String returns the canonical specification
func (e Endpoint) String() string {
	if e.Domain == DomainUnix {
		return "unix://" + e.Path
	}
	scheme := "tcp://"
	if e.IsSSL() {
		scheme = "ssl://"
	}
	return scheme + e.Address()
}
