package responder

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouterService(t *testing.T, endpoints ...Endpoint) (*Router, *Registry) {
	t.Helper()
	svc, err := NewService(Identity{Name: "router", ID: testServiceID}, endpoints...)
	require.NoError(t, err)
	stats := NewRegistry(svc)
	return NewRouter(svc, stats, nil), stats
}

func TestRouterDispatch(t *testing.T) {
	router, stats := newRouterService(t, Endpoint{
		Name:    "upper",
		Subject: "text.upper",
		Handler: func(body []byte) ([]byte, error) { return append([]byte("UP:"), body...), nil },
	})

	reply, found := router.Dispatch("text.upper", []byte("abc"))
	require.True(t, found)
	assert.Equal(t, "UP:abc", string(reply))

	es, ok := stats.Endpoint("upper")
	require.True(t, ok)
	assert.Equal(t, 1, es.NumRequests)
	assert.Equal(t, 0, es.NumErrors)
}

func TestRouterUnknownSubject(t *testing.T) {
	router, stats := newRouterService(t, Endpoint{Name: "upper"})

	reply, found := router.Dispatch("text.lower", nil)
	assert.False(t, found)
	assert.Nil(t, reply)

	es, _ := stats.Endpoint("upper")
	assert.Equal(t, 0, es.NumRequests)
}

func TestRouterFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		reply   string
		last    string
	}{
		{
			name:    "plain error",
			handler: func([]byte) ([]byte, error) { return nil, errAddFailed },
			reply:   `{"code":500,"state":"error","desc":"operand overflow"}`,
			last:    "operand overflow",
		},
		{
			name: "handler error",
			handler: func([]byte) ([]byte, error) {
				return nil, Result(http.StatusBadRequest, "invalid_operand", "operand is not a number")
			},
			reply: `{"code":400,"state":"invalid_operand","desc":"operand is not a number"}`,
			last:  "operand is not a number",
		},
		{
			name: "handler error defaults",
			handler: func([]byte) ([]byte, error) {
				return nil, Result(0, "", "bad")
			},
			reply: `{"code":500,"state":"error","desc":"bad"}`,
			last:  "bad",
		},
		{
			name:    "panic",
			handler: func([]byte) ([]byte, error) { panic("division by zero") },
			reply:   `{"code":500,"state":"error","desc":"handler panic: division by zero"}`,
			last:    "handler panic: division by zero",
		},
		{
			name:  "nil handler",
			reply: `{"code":501,"state":"not_implemented","desc":"endpoint not implemented: op"}`,
			last:  "endpoint not implemented: op",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, stats := newRouterService(t, Endpoint{Name: "op", Handler: tt.handler})

			reply, found := router.Dispatch("op", []byte("x"))
			require.True(t, found)
			assert.JSONEq(t, tt.reply, string(reply))

			es, ok := stats.Endpoint("op")
			require.True(t, ok)
			assert.Equal(t, 1, es.NumRequests)
			assert.Equal(t, 1, es.NumErrors)
			assert.Equal(t, tt.last, es.LastError)
		})
	}
}

func TestHandlerErrorMessage(t *testing.T) {
	assert.Equal(t, "bad input", Result(400, "invalid", "bad input").Error())
	assert.Equal(t, "invalid", Result(400, "invalid", "").Error())
}

func TestRouterLogsUnrecordedInvocation(t *testing.T) {
	svc, err := NewService(Identity{Name: "router", ID: testServiceID},
		Endpoint{Name: "upper", Handler: func(b []byte) ([]byte, error) { return b, nil }})
	require.NoError(t, err)
	other, err := NewService(Identity{Name: "other"})
	require.NoError(t, err)

	var buf bytes.Buffer
	router := NewRouter(svc, NewRegistry(other), newLogger(&buf, LogConfig{}))

	reply, found := router.Dispatch("upper", []byte("abc"))
	require.True(t, found)
	assert.Equal(t, "abc", string(reply))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "endpoint=upper")
	assert.Contains(t, buf.String(), ErrUnknownEndpoint.Error())
}
