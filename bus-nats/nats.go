package bus_nats

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bamgoo/base"
	"github.com/bamgoo/responder"
	"github.com/nats-io/nats.go"
)

var (
	errInvalidConnection = errors.New("invalid nats connection")
	errAlreadyRunning    = errors.New("nats bus is already running")
	errNotRunning        = errors.New("nats bus is not running")
)

const (
	defaultReconnectWait = 2 * time.Second
	defaultFlushTimeout  = 5 * time.Second
)

type (
	natsDriver struct{}

	natsConnect struct {
		mutex   sync.RWMutex
		running bool

		instance *responder.BusInstance
		setting  natsSetting
		client   *nats.Conn

		registered []responder.Subscription
		subs       []*nats.Subscription
	}

	natsSetting struct {
		URL           string
		Name          string
		Username      string
		Password      string
		Token         string
		QueueGroup    string
		MaxReconnects int
		ReconnectWait time.Duration
	}
)

func (driver *natsDriver) Connect(inst *responder.BusInstance) (responder.Connection, error) {
	return &natsConnect{
		instance:   inst,
		setting:    parseSetting(inst.Config.Setting),
		registered: make([]responder.Subscription, 0),
		subs:       make([]*nats.Subscription, 0),
	}, nil
}

func parseSetting(s base.Map) natsSetting {
	setting := natsSetting{
		URL:           nats.DefaultURL,
		MaxReconnects: nats.DefaultMaxReconnect,
		ReconnectWait: defaultReconnectWait,
	}

	if v, ok := s["url"].(string); ok && v != "" {
		setting.URL = v
	}
	if v, ok := s["server"].(string); ok && v != "" {
		setting.URL = v
	}
	if v, ok := s["name"].(string); ok {
		setting.Name = v
	}
	if v, ok := s["user"].(string); ok {
		setting.Username = v
	}
	if v, ok := s["username"].(string); ok {
		setting.Username = v
	}
	if v, ok := s["pass"].(string); ok {
		setting.Password = v
	}
	if v, ok := s["password"].(string); ok {
		setting.Password = v
	}
	if v, ok := s["token"].(string); ok {
		setting.Token = v
	}
	if v, ok := s["group"].(string); ok {
		setting.QueueGroup = v
	}
	if v, ok := toInt(s["max_reconnects"]); ok {
		setting.MaxReconnects = v
	}
	switch v := s["reconnect_wait"].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			setting.ReconnectWait = d
		}
	default:
		if n, ok := toInt(v); ok {
			setting.ReconnectWait = time.Duration(n) * time.Second
		}
	}
	return setting
}

func toInt(v any) (int, bool) {
	switch vv := v.(type) {
	case int:
		return vv, true
	case int64:
		return int(vv), true
	case float64:
		return int(vv), true
	case string:
		n, err := strconv.Atoi(vv)
		return n, err == nil
	}
	return 0, false
}

func (c *natsConnect) Open() error {
	logger := c.instance.Logger()

	opts := []nats.Option{
		nats.MaxReconnects(c.setting.MaxReconnects),
		nats.ReconnectWait(c.setting.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if c.setting.Name != "" {
		opts = append(opts, nats.Name(c.setting.Name))
	}
	if c.setting.Username != "" && c.setting.Password != "" {
		opts = append(opts, nats.UserInfo(c.setting.Username, c.setting.Password))
	}
	if c.setting.Token != "" {
		opts = append(opts, nats.Token(c.setting.Token))
	}

	client, err := nats.Connect(c.setting.URL, opts...)
	if err != nil {
		return err
	}

	c.client = client
	return nil
}

func (c *natsConnect) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// Register records a subscription to create on Start.
func (c *natsConnect) Register(sub responder.Subscription) error {
	c.mutex.Lock()
	c.registered = append(c.registered, sub)
	c.mutex.Unlock()
	return nil
}

func (c *natsConnect) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.running {
		return errAlreadyRunning
	}
	if c.client == nil {
		return errInvalidConnection
	}

	for _, reg := range c.registered {
		var (
			sub *nats.Subscription
			err error
		)
		if group := c.queueGroup(reg); group != "" {
			sub, err = c.client.QueueSubscribe(reg.Subject, group, c.deliver)
		} else {
			sub, err = c.client.Subscribe(reg.Subject, c.deliver)
		}
		if err != nil {
			c.unsubscribe()
			return err
		}
		c.subs = append(c.subs, sub)
	}

	if err := c.client.FlushTimeout(defaultFlushTimeout); err != nil {
		c.unsubscribe()
		return err
	}

	c.running = true
	return nil
}

func (c *natsConnect) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.running {
		return errNotRunning
	}

	c.unsubscribe()
	c.running = false
	return nil
}

func (c *natsConnect) Publish(subject string, data []byte) error {
	if c.client == nil {
		return errInvalidConnection
	}
	return c.client.Publish(subject, data)
}

func (c *natsConnect) deliver(msg *nats.Msg) {
	c.instance.Handle(c, responder.Message{
		Subject: msg.Subject,
		Reply:   msg.Reply,
		Data:    msg.Data,
	})
}

func (c *natsConnect) unsubscribe() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
}

// queueGroup keeps discovery subjects ungrouped so every instance answers.
func (c *natsConnect) queueGroup(sub responder.Subscription) string {
	if sub.QueueGroup == "" {
		return ""
	}
	if c.setting.QueueGroup != "" {
		return c.setting.QueueGroup
	}
	return sub.QueueGroup
}
