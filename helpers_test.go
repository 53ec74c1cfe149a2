package responder

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testServiceID = "adfa8cb7-0821-4e63-9dbd-92a27c30f083"

type published struct {
	Subject string
	Data    []byte
}

type recordingPublisher struct {
	mutex    sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{Subject: subject, Data: data})
	return nil
}

func (p *recordingPublisher) Messages() []published {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]published(nil), p.messages...)
}

var errAddFailed = errors.New("operand overflow")

func testService(t *testing.T) *Service {
	t.Helper()

	echo := func(body []byte) ([]byte, error) { return body, nil }
	svc, err := NewService(
		Identity{
			Name:        "calculator",
			ID:          testServiceID,
			Version:     "0.1.0",
			Description: "Calculator Service",
		},
		Endpoint{Name: "add", Handler: func(body []byte) ([]byte, error) {
			if string(body) == "fail" {
				return nil, errAddFailed
			}
			return []byte("ok:" + string(body)), nil
		}},
		Endpoint{Name: "subtract", Handler: echo},
		Endpoint{Name: "multiply", Handler: echo},
	)
	require.NoError(t, err)
	return svc
}

func testResponder(t *testing.T, opts ...Option) *Responder {
	t.Helper()
	r, err := NewResponder(testService(t), opts...)
	require.NoError(t, err)
	return r
}
