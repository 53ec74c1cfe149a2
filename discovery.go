package responder

import (
	"encoding/json"
	"time"
)

const (
	// MicroTypePrefix namespaces response types in the NATS micro protocol.
	MicroTypePrefix = "io.nats.micro.v1."

	PingResponseType  = "ping_response"
	InfoResponseType  = "info_response"
	StatsResponseType = "stats_response"
)

type (
	// PingResponse answers PING.
	PingResponse struct {
		Type     string            `json:"type"`
		Name     string            `json:"name"`
		ID       string            `json:"id"`
		Version  string            `json:"version"`
		Metadata map[string]string `json:"metadata"`
	}

	// InfoResponse answers INFO.
	InfoResponse struct {
		Type        string            `json:"type"`
		Name        string            `json:"name"`
		ID          string            `json:"id"`
		Version     string            `json:"version"`
		Metadata    map[string]string `json:"metadata"`
		Description string            `json:"description"`
		Endpoints   []EndpointInfo    `json:"endpoints"`
	}

	// EndpointInfo describes one endpoint in an INFO response.
	EndpointInfo struct {
		Name       string            `json:"name"`
		Subject    string            `json:"subject"`
		QueueGroup string            `json:"queue_group"`
		Metadata   map[string]string `json:"metadata"`
	}

	// StatsResponse answers STATS. It is built fresh for every request.
	StatsResponse struct {
		Type      string            `json:"type"`
		Name      string            `json:"name"`
		ID        string            `json:"id"`
		Version   string            `json:"version"`
		Metadata  map[string]string `json:"metadata"`
		Endpoints []EndpointStats   `json:"endpoints"`
		Started   time.Time         `json:"started"`
	}

	// Discovery builds the PING, INFO and STATS documents of a service.
	Discovery struct {
		service    *Service
		stats      *Registry
		typePrefix string
	}
)

// NewDiscovery creates a discovery responder. typePrefix is prepended to
// every response type.
func NewDiscovery(svc *Service, stats *Registry, typePrefix string) *Discovery {
	return &Discovery{service: svc, stats: stats, typePrefix: typePrefix}
}

// Matches reports whether a control route addresses this instance:
// the bare verb, the verb scoped to the service name, or the verb scoped to
// name and id.
func (d *Discovery) Matches(route ControlRoute) bool {
	switch len(route.Tokens) {
	case 2:
		return true
	case 3:
		return route.Tokens[2] == d.service.identity.Name
	case 4:
		return route.Tokens[2] == d.service.identity.Name && route.Tokens[3] == d.service.identity.ID
	default:
		return false
	}
}

// Respond returns the encoded reply for a control route. It returns false
// when the route does not match this instance or names an unknown verb.
func (d *Discovery) Respond(route ControlRoute) ([]byte, bool, error) {
	if !d.Matches(route) {
		return nil, false, nil
	}

	var doc any
	switch route.Verb {
	case PING:
		doc = d.Ping()
	case INFO:
		doc = d.Info()
	case STATS:
		doc = d.Stats()
	default:
		return nil, false, nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *Discovery) Ping() PingResponse {
	id := d.service.Identity()
	return PingResponse{
		Type:     d.typePrefix + PingResponseType,
		Name:     id.Name,
		ID:       id.ID,
		Version:  id.Version,
		Metadata: id.Metadata,
	}
}

func (d *Discovery) Info() InfoResponse {
	id := d.service.Identity()
	endpoints := make([]EndpointInfo, 0, len(d.service.endpoints))
	for _, ep := range d.service.Endpoints() {
		endpoints = append(endpoints, EndpointInfo{
			Name:       ep.Name,
			Subject:    ep.Subject,
			QueueGroup: ep.QueueGroup,
			Metadata:   ep.Metadata,
		})
	}
	return InfoResponse{
		Type:        d.typePrefix + InfoResponseType,
		Name:        id.Name,
		ID:          id.ID,
		Version:     id.Version,
		Metadata:    id.Metadata,
		Description: id.Description,
		Endpoints:   endpoints,
	}
}

func (d *Discovery) Stats() StatsResponse {
	id := d.service.Identity()
	return StatsResponse{
		Type:      d.typePrefix + StatsResponseType,
		Name:      id.Name,
		ID:        id.ID,
		Version:   id.Version,
		Metadata:  id.Metadata,
		Endpoints: d.stats.Snapshot(),
		Started:   d.service.Started(),
	}
}
