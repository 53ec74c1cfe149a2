package responder

import (
	"fmt"
)

type (
	// Message is an inbound transport message.
	Message struct {
		Subject string
		Reply   string
		Data    []byte
	}

	// Publisher delivers a payload to a subject, best effort.
	Publisher interface {
		Publish(subject string, data []byte) error
	}

	// PublisherFunc adapts a function to Publisher.
	PublisherFunc func(subject string, data []byte) error

	// TransportError reports a reply that could not be published.
	TransportError struct {
		Subject string
		Err     error
	}
)

func (f PublisherFunc) Publish(subject string, data []byte) error {
	return f(subject, data)
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Subject, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func publish(pub Publisher, subject string, data []byte) error {
	if pub == nil {
		return &TransportError{Subject: subject, Err: errNoPublisher}
	}
	if err := pub.Publish(subject, data); err != nil {
		return &TransportError{Subject: subject, Err: err}
	}
	return nil
}
