package responder

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	errNoPublisher = errors.New("no publisher")
)

type (
	// Responder routes inbound messages to discovery or to business
	// endpoints and publishes the replies.
	Responder struct {
		service   *Service
		stats     *Registry
		discovery *Discovery
		router    *Router

		prefix     string
		typePrefix string
		logger     *slog.Logger
	}

	// Subscription is a subject a transport must listen on. An empty queue
	// group means every instance receives the message.
	Subscription struct {
		Subject    string
		QueueGroup string
	}

	Option func(*Responder)
)

// WithPrefix sets the control namespace.
func WithPrefix(prefix string) Option {
	return func(r *Responder) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithTypePrefix sets the prefix of response types.
func WithTypePrefix(prefix string) Option {
	return func(r *Responder) {
		r.typePrefix = prefix
	}
}

// WithMicroCompat speaks the NATS micro conventions: $SRV and
// io.nats.micro.v1 response types.
func WithMicroCompat() Option {
	return func(r *Responder) {
		r.prefix = MicroPrefix
		r.typePrefix = MicroTypePrefix
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResponder wires discovery, stats and routing for a service.
func NewResponder(svc *Service, opts ...Option) (*Responder, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: nil service", ErrInvalidService)
	}

	r := &Responder{
		service: svc,
		prefix:  DefaultPrefix,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if strings.Contains(r.prefix, Delimiter) {
		return nil, fmt.Errorf("%w: prefix %q contains %q", ErrInvalidService, r.prefix, Delimiter)
	}
	for _, ep := range svc.endpoints {
		if ep.Subject == r.prefix || strings.HasPrefix(ep.Subject, r.prefix+Delimiter) {
			return nil, fmt.Errorf("%w: endpoint %s uses control subject %s", ErrInvalidService, ep.Name, ep.Subject)
		}
	}

	r.logger = r.logger.With("service", svc.identity.Name, "id", svc.identity.ID)
	r.stats = NewRegistry(svc)
	r.discovery = NewDiscovery(svc, r.stats, r.typePrefix)
	r.router = NewRouter(svc, r.stats, r.logger)
	return r, nil
}

func (r *Responder) Service() *Service {
	return r.service
}

func (r *Responder) Stats() *Registry {
	return r.stats
}

func (r *Responder) Discovery() *Discovery {
	return r.discovery
}

func (r *Responder) Prefix() string {
	return r.prefix
}

// Subscriptions lists the control subjects of every verb and scope, then
// the endpoint subjects in registration order.
func (r *Responder) Subscriptions() []Subscription {
	id := r.service.identity
	subs := make([]Subscription, 0, len(verbs)*3+len(r.service.endpoints))
	for _, verb := range verbs {
		subs = append(subs,
			Subscription{Subject: controlSubject(r.prefix, verb)},
			Subscription{Subject: controlSubject(r.prefix, verb, id.Name)},
			Subscription{Subject: controlSubject(r.prefix, verb, id.Name, id.ID)},
		)
	}
	for _, ep := range r.service.endpoints {
		subs = append(subs, Subscription{Subject: ep.Subject, QueueGroup: ep.QueueGroup})
	}
	return subs
}

// Handle processes one inbound message. It never panics on a single
// message and never returns an error: failures are recorded or logged.
func (r *Responder) Handle(pub Publisher, msg Message) {
	route, ok := Parse(r.prefix, msg.Subject)
	if !ok {
		r.logger.Debug("malformed control subject", "subject", msg.Subject)
		return
	}

	switch rt := route.(type) {
	case ControlRoute:
		r.handleControl(pub, msg, rt)
	case BusinessRoute:
		r.handleBusiness(pub, msg, rt)
	}
}

func (r *Responder) handleControl(pub Publisher, msg Message, route ControlRoute) {
	if msg.Reply == "" {
		r.logger.Debug("control message without reply", "subject", msg.Subject)
		return
	}

	data, ok, err := r.discovery.Respond(route)
	if err != nil {
		r.logger.Error("encode discovery response", "subject", msg.Subject, "error", err)
		return
	}
	if !ok {
		return
	}

	if err := publish(pub, msg.Reply, data); err != nil {
		r.logger.Error("discovery reply failed", "verb", route.Verb, "error", err)
	}
}

func (r *Responder) handleBusiness(pub Publisher, msg Message, route BusinessRoute) {
	reply, found := r.router.Dispatch(route.Subject, msg.Data)
	if !found || msg.Reply == "" {
		return
	}

	if err := publish(pub, msg.Reply, reply); err != nil {
		r.logger.Error("endpoint reply failed", "subject", route.Subject, "error", err)
	}
}
