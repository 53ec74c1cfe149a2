package responder

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bamgoo/base"
)

const (
	DEFAULT = "default"
)

var (
	errBusNotOpened   = errors.New("bus is not opened")
	errBusNoHandler   = errors.New("bus has no message handler")
	errBusNoConnected = errors.New("bus has no connection")
)

var (
	drivers = &driverRegistry{
		drivers: make(map[string]Driver, 0),
	}
)

type (
	// Driver connects a bus transport.
	Driver interface {
		Connect(*BusInstance) (Connection, error)
	}

	// Connection defines a bus transport connection.
	Connection interface {
		Open() error
		Close() error
		Start() error
		Stop() error

		Register(sub Subscription) error
		Publish(subject string, data []byte) error
	}

	// MessageHandler processes one message delivered by a connection.
	MessageHandler interface {
		Handle(pub Publisher, msg Message)
	}

	BusConfig struct {
		Driver  string   `json:"driver"`
		Setting base.Map `json:"setting"`
	}

	BusConfigs map[string]BusConfig

	// BusInstance is handed to a driver on Connect.
	BusInstance struct {
		Name    string
		Config  BusConfig
		handler MessageHandler
		logger  *slog.Logger
	}

	driverRegistry struct {
		mutex   sync.RWMutex
		drivers map[string]Driver
	}

	// Bus owns the transport connections of one responder.
	Bus struct {
		mutex sync.RWMutex

		configs     BusConfigs
		handler     MessageHandler
		subs        []Subscription
		connections map[string]Connection
		names       []string
		logger      *slog.Logger

		opened  bool
		started bool
	}
)

// RegisterDriver registers a bus driver. Drivers register themselves from
// init functions.
func RegisterDriver(name string, driver Driver) {
	drivers.mutex.Lock()
	defer drivers.mutex.Unlock()

	if name == "" {
		name = DEFAULT
	}
	if driver == nil {
		panic("Invalid bus driver: " + name)
	}
	if _, ok := drivers.drivers[name]; ok {
		panic("Bus driver already registered: " + name)
	}
	drivers.drivers[name] = driver
}

func lookupDriver(name string) (Driver, bool) {
	drivers.mutex.RLock()
	defer drivers.mutex.RUnlock()
	driver, ok := drivers.drivers[name]
	return driver, ok
}

// NewBus creates a bus delivering to handler over the given configs. With
// no config a single in-memory connection is used.
func NewBus(handler MessageHandler, configs BusConfigs, subs []Subscription, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	normalized := make(BusConfigs, len(configs))
	for name, cfg := range configs {
		if name == "" {
			name = DEFAULT
		}
		if cfg.Driver == "" {
			cfg.Driver = DEFAULT
		}
		if cfg.Setting == nil {
			cfg.Setting = base.Map{}
		}
		normalized[name] = cfg
	}
	if len(normalized) == 0 {
		normalized[DEFAULT] = BusConfig{Driver: DEFAULT, Setting: base.Map{}}
	}

	return &Bus{
		configs:     normalized,
		handler:     handler,
		subs:        subs,
		connections: make(map[string]Connection, 0),
		logger:      logger,
	}
}

// Open connects every configured bus and registers the subscriptions.
func (b *Bus) Open() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.opened {
		return nil
	}
	if b.handler == nil {
		return errBusNoHandler
	}

	names := make([]string, 0, len(b.configs))
	for name := range b.configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := b.configs[name]

		driver, ok := lookupDriver(cfg.Driver)
		if !ok {
			b.closeAll()
			return fmt.Errorf("missing bus driver: %s", cfg.Driver)
		}

		inst := &BusInstance{
			Name:    name,
			Config:  cfg,
			handler: b.handler,
			logger:  b.logger.With("bus", name, "driver", cfg.Driver),
		}
		conn, err := driver.Connect(inst)
		if err != nil {
			b.closeAll()
			return fmt.Errorf("connect bus %s: %w", name, err)
		}
		if err := conn.Open(); err != nil {
			b.closeAll()
			return fmt.Errorf("open bus %s: %w", name, err)
		}

		for _, sub := range b.subs {
			if err := conn.Register(sub); err != nil {
				_ = conn.Close()
				b.closeAll()
				return fmt.Errorf("register %s on bus %s: %w", sub.Subject, name, err)
			}
		}

		b.connections[name] = conn
		b.names = append(b.names, name)
	}

	if len(b.connections) == 0 {
		return errBusNoConnected
	}

	b.opened = true
	return nil
}

// Start launches the subscriptions of every connection.
func (b *Bus) Start() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.started {
		return nil
	}
	if !b.opened {
		return errBusNotOpened
	}

	for _, name := range b.names {
		if err := b.connections[name].Start(); err != nil {
			return fmt.Errorf("start bus %s: %w", name, err)
		}
	}
	b.started = true
	return nil
}

// Stop terminates the subscriptions.
func (b *Bus) Stop() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.started {
		return nil
	}

	var errs []error
	for _, name := range b.names {
		if err := b.connections[name].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop bus %s: %w", name, err))
		}
	}
	b.started = false
	return errors.Join(errs...)
}

// Close releases the connections.
func (b *Bus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.opened {
		return nil
	}
	err := b.closeAll()
	b.opened = false
	return err
}

func (b *Bus) closeAll() error {
	var errs []error
	for _, name := range b.names {
		if err := b.connections[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus %s: %w", name, err))
		}
	}
	b.connections = make(map[string]Connection, 0)
	b.names = nil
	return errors.Join(errs...)
}

// Handle delivers a message to the responder. A panic in one message is
// logged and swallowed so the connection keeps serving.
func (inst *BusInstance) Handle(pub Publisher, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			inst.Logger().Error("message handling panic", "subject", msg.Subject, "panic", rec)
		}
	}()
	if inst.handler == nil {
		return
	}
	inst.handler.Handle(pub, msg)
}

// Logger returns the logger of the bus instance.
func (inst *BusInstance) Logger() *slog.Logger {
	if inst.logger == nil {
		return slog.Default()
	}
	return inst.logger
}
