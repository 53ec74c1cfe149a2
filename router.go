package responder

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	stateError          = "error"
	stateNotImplemented = "not_implemented"
)

type (
	// HandlerError lets a handler choose the code and state of its error reply.
	HandlerError struct {
		Code  int
		State string
		Desc  string
	}

	// errorResponse is the reply body of a failed invocation.
	errorResponse struct {
		Code  int    `json:"code"`
		State string `json:"state"`
		Desc  string `json:"desc,omitempty"`
	}

	// Router dispatches business subjects to endpoint handlers.
	Router struct {
		service *Service
		stats   *Registry
		logger  *slog.Logger
	}
)

// Result builds a HandlerError.
func Result(code int, state, desc string) *HandlerError {
	return &HandlerError{Code: code, State: state, Desc: desc}
}

func (e *HandlerError) Error() string {
	if e.Desc != "" {
		return e.Desc
	}
	return e.State
}

func NewRouter(svc *Service, stats *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{service: svc, stats: stats, logger: logger}
}

// Dispatch invokes the endpoint registered on subject. found is false when
// no endpoint owns the subject; nothing is recorded in that case.
// Handler failures never escape: they are recorded and encoded as the reply.
func (r *Router) Dispatch(subject string, body []byte) (reply []byte, found bool) {
	ep, ok := r.service.lookup(subject)
	if !ok {
		return nil, false
	}

	start := time.Now()
	data, err := invoke(ep, body)
	elapsed := time.Since(start)

	if err != nil {
		r.record(ep, false, err.Error(), elapsed)
		return encodeError(err), true
	}

	r.record(ep, true, "", elapsed)
	return data, true
}

func (r *Router) record(ep Endpoint, succeeded bool, errMsg string, elapsed time.Duration) {
	if err := r.stats.RecordInvocation(ep.Name, succeeded, errMsg, elapsed); err != nil {
		r.logger.Error("record invocation", "endpoint", ep.Name, "subject", ep.Subject, "error", err)
	}
}

func invoke(ep Endpoint, body []byte) (data []byte, err error) {
	if ep.Handler == nil {
		return nil, Result(http.StatusNotImplemented, stateNotImplemented, "endpoint not implemented: "+ep.Name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	return ep.Handler(body)
}

func encodeError(err error) []byte {
	resp := errorResponse{
		Code:  http.StatusInternalServerError,
		State: stateError,
		Desc:  err.Error(),
	}

	var he *HandlerError
	if errors.As(err, &he) {
		if he.Code != 0 {
			resp.Code = he.Code
		}
		if he.State != "" {
			resp.State = he.State
		}
		resp.Desc = he.Desc
	}

	data, mErr := json.Marshal(resp)
	if mErr != nil {
		return []byte(`{"code":500,"state":"error"}`)
	}
	return data
}
