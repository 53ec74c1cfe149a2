package responder

import (
	"strings"
)

const (
	// Delimiter separates subject tokens.
	Delimiter = "."

	// DefaultPrefix is the reserved control namespace.
	DefaultPrefix = "$CTL"
	// MicroPrefix is the control namespace used by the NATS micro protocol.
	MicroPrefix = "$SRV"
)

// Control verbs.
const (
	PING  = "PING"
	INFO  = "INFO"
	STATS = "STATS"
)

var verbs = []string{PING, INFO, STATS}

type (
	// Route is the classification of an inbound subject.
	// It is either a ControlRoute or a BusinessRoute.
	Route interface {
		route()
	}

	// ControlRoute is a discovery command under the control prefix.
	ControlRoute struct {
		Verb   string
		Tokens []string
	}

	// BusinessRoute is an endpoint invocation.
	BusinessRoute struct {
		Subject string
	}
)

func (ControlRoute) route()  {}
func (BusinessRoute) route() {}

// Service returns the service-name qualifier, if present.
func (r ControlRoute) Service() (string, bool) {
	if len(r.Tokens) < 3 {
		return "", false
	}
	return r.Tokens[2], true
}

// ID returns the instance-id qualifier, if present.
func (r ControlRoute) ID() (string, bool) {
	if len(r.Tokens) < 4 {
		return "", false
	}
	return r.Tokens[3], true
}

// Tokens splits a subject on the delimiter. Empty tokens are kept.
func Tokens(subject string) []string {
	return strings.Split(subject, Delimiter)
}

// Join is the inverse of Tokens.
func Join(tokens []string) string {
	return strings.Join(tokens, Delimiter)
}

// Parse classifies a subject. It returns false for a control subject with
// no verb, which callers drop silently.
func Parse(prefix, subject string) (Route, bool) {
	tokens := Tokens(subject)
	if tokens[0] != prefix {
		return BusinessRoute{Subject: subject}, true
	}
	if len(tokens) < 2 {
		return nil, false
	}
	return ControlRoute{Verb: tokens[1], Tokens: tokens}, true
}

func controlSubject(prefix string, parts ...string) string {
	return Join(append([]string{prefix}, parts...))
}
