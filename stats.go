package responder

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

type (
	// EndpointStats contains the invocation statistics of one endpoint.
	EndpointStats struct {
		Name                  string        `json:"name"`
		Subject               string        `json:"subject"`
		QueueGroup            string        `json:"queue_group"`
		NumRequests           int           `json:"num_requests"`
		NumErrors             int           `json:"num_errors"`
		LastError             string        `json:"last_error"`
		ProcessingTime        time.Duration `json:"processing_time"`
		AverageProcessingTime time.Duration `json:"average_processing_time"`
	}

	// Registry owns the stats of every endpoint of a service.
	// One mutex guards all counters, so a snapshot never sees half of an update.
	Registry struct {
		mutex  sync.RWMutex
		order  []*EndpointStats
		byName map[string]*EndpointStats
	}
)

// NewRegistry creates zeroed stats for the service endpoints.
func NewRegistry(svc *Service) *Registry {
	r := &Registry{
		order:  make([]*EndpointStats, 0, len(svc.endpoints)),
		byName: make(map[string]*EndpointStats, len(svc.endpoints)),
	}
	for _, ep := range svc.endpoints {
		st := &EndpointStats{
			Name:       ep.Name,
			Subject:    ep.Subject,
			QueueGroup: ep.QueueGroup,
		}
		r.order = append(r.order, st)
		r.byName[ep.Name] = st
	}
	return r
}

// RecordInvocation adds one request to the endpoint stats.
func (r *Registry) RecordInvocation(name string, succeeded bool, errMsg string, elapsed time.Duration) error {
	if elapsed < 0 {
		elapsed = 0
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	st, ok := r.byName[name]
	if !ok {
		return ErrUnknownEndpoint
	}

	st.NumRequests++
	if !succeeded {
		st.NumErrors++
		st.LastError = errMsg
	}
	st.ProcessingTime += elapsed
	st.AverageProcessingTime = st.ProcessingTime / time.Duration(st.NumRequests)
	return nil
}

// Snapshot copies the stats of all endpoints in registration order.
func (r *Registry) Snapshot() []EndpointStats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]EndpointStats, len(r.order))
	for i, st := range r.order {
		out[i] = *st
	}
	return out
}

// Endpoint copies the stats of a single endpoint.
func (r *Registry) Endpoint(name string) (EndpointStats, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	st, ok := r.byName[name]
	if !ok {
		return EndpointStats{}, false
	}
	return *st, true
}
