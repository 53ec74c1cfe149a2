package responder

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultQueueGroup is applied to endpoints registered without one.
	DefaultQueueGroup = "q"
)

var (
	ErrInvalidService = errors.New("invalid service")
)

type (
	// Handler processes an endpoint payload and returns reply bytes.
	Handler func([]byte) ([]byte, error)

	// Identity describes one service instance. It never changes after
	// NewService.
	Identity struct {
		Name        string
		ID          string
		Version     string
		Description string
		Metadata    map[string]string
	}

	// Endpoint describes a business operation on its own subject.
	Endpoint struct {
		Name       string
		Subject    string
		QueueGroup string
		Metadata   map[string]string
		Handler    Handler
	}

	// Service is the immutable identity and endpoint set of a responder.
	Service struct {
		identity  Identity
		endpoints []Endpoint
		subjects  map[string]int
		started   time.Time
	}
)

// NewService validates the identity and endpoints and fixes the start time.
// An empty ID is replaced with a random UUID.
func NewService(identity Identity, endpoints ...Endpoint) (*Service, error) {
	if identity.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidService)
	}
	if strings.Contains(identity.Name, Delimiter) {
		return nil, fmt.Errorf("%w: name %q contains %q", ErrInvalidService, identity.Name, Delimiter)
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if strings.Contains(identity.ID, Delimiter) {
		return nil, fmt.Errorf("%w: id %q contains %q", ErrInvalidService, identity.ID, Delimiter)
	}
	identity.Metadata = cloneMetadata(identity.Metadata)

	svc := &Service{
		identity:  identity,
		endpoints: make([]Endpoint, 0, len(endpoints)),
		subjects:  make(map[string]int, len(endpoints)),
		started:   time.Now().UTC(),
	}

	names := make(map[string]struct{}, len(endpoints))
	for _, ep := range endpoints {
		if ep.Name == "" {
			return nil, fmt.Errorf("%w: endpoint without name", ErrInvalidService)
		}
		if _, ok := names[ep.Name]; ok {
			return nil, fmt.Errorf("%w: endpoint already registered: %s", ErrInvalidService, ep.Name)
		}
		if ep.Subject == "" {
			ep.Subject = ep.Name
		}
		if _, ok := svc.subjects[ep.Subject]; ok {
			return nil, fmt.Errorf("%w: subject already registered: %s", ErrInvalidService, ep.Subject)
		}
		if ep.QueueGroup == "" {
			ep.QueueGroup = DefaultQueueGroup
		}
		ep.Metadata = cloneMetadata(ep.Metadata)

		names[ep.Name] = struct{}{}
		svc.subjects[ep.Subject] = len(svc.endpoints)
		svc.endpoints = append(svc.endpoints, ep)
	}

	return svc, nil
}

// Identity returns a copy of the service identity.
func (s *Service) Identity() Identity {
	id := s.identity
	id.Metadata = cloneMetadata(s.identity.Metadata)
	return id
}

// Endpoints returns the endpoints in registration order.
func (s *Service) Endpoints() []Endpoint {
	out := make([]Endpoint, len(s.endpoints))
	for i, ep := range s.endpoints {
		ep.Metadata = cloneMetadata(ep.Metadata)
		out[i] = ep
	}
	return out
}

// Started returns the fixed start timestamp.
func (s *Service) Started() time.Time {
	return s.started
}

func (s *Service) lookup(subject string) (Endpoint, bool) {
	idx, ok := s.subjects[subject]
	if !ok {
		return Endpoint{}, false
	}
	return s.endpoints[idx], true
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return maps.Clone(in)
}
