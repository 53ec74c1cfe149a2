package responder

import (
	"errors"
	"sort"
	"sync"
)

var (
	errBusRunning       = errors.New("bus is running")
	errBusNotRunning    = errors.New("bus is not running")
	errBusInvalidTarget = errors.New("invalid bus target")
)

var defaultHub = NewMemoryHub()

func init() {
	RegisterDriver(DEFAULT, &defaultBusDriver{})
}

type (
	// MemoryHub is an in-process subject router. Subjects match exactly.
	// Subscribers sharing a queue group on a subject receive messages in turn.
	MemoryHub struct {
		mutex sync.Mutex
		seq   uint64
		subs  map[string]map[uint64]*memorySub
		turns map[string]uint64
	}

	memorySub struct {
		id      uint64
		queue   string
		deliver func(Message)
	}

	defaultBusDriver struct{}

	defaultBusConnection struct {
		mutex    sync.RWMutex
		running  bool
		instance *BusInstance
		hub      *MemoryHub
		subs     []Subscription
		cancels  []func()
	}
)

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs:  make(map[string]map[uint64]*memorySub, 0),
		turns: make(map[string]uint64, 0),
	}
}

// DefaultHub is the hub used by in-memory connections without a "hub"
// setting.
func DefaultHub() *MemoryHub {
	return defaultHub
}

// Subscribe registers fn on subject and returns the unsubscribe function.
func (h *MemoryHub) Subscribe(subject, queue string, fn func(Message)) func() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.seq++
	sub := &memorySub{id: h.seq, queue: queue, deliver: fn}
	if _, ok := h.subs[subject]; !ok {
		h.subs[subject] = make(map[uint64]*memorySub, 0)
	}
	h.subs[subject][sub.id] = sub

	return func() {
		h.mutex.Lock()
		defer h.mutex.Unlock()
		delete(h.subs[subject], sub.id)
		if len(h.subs[subject]) == 0 {
			delete(h.subs, subject)
		}
	}
}

// Publish delivers msg to every plain subscriber and to one member of each
// queue group. Each delivery runs on its own goroutine.
func (h *MemoryHub) Publish(msg Message) error {
	if msg.Subject == "" {
		return errBusInvalidTarget
	}

	for _, sub := range h.targets(msg.Subject) {
		go sub.deliver(msg)
	}
	return nil
}

func (h *MemoryHub) targets(subject string) []*memorySub {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	targets := make([]*memorySub, 0)
	groups := make(map[string][]*memorySub, 0)
	for _, sub := range h.subs[subject] {
		if sub.queue == "" {
			targets = append(targets, sub)
			continue
		}
		groups[sub.queue] = append(groups[sub.queue], sub)
	}

	for queue, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].id < members[j].id })
		key := subject + " " + queue
		turn := h.turns[key]
		h.turns[key] = turn + 1
		targets = append(targets, members[turn%uint64(len(members))])
	}
	return targets
}

// Connect establishes an in-memory bus on the configured hub.
func (driver *defaultBusDriver) Connect(inst *BusInstance) (Connection, error) {
	hub := defaultHub
	if h, ok := inst.Config.Setting["hub"].(*MemoryHub); ok && h != nil {
		hub = h
	}
	return &defaultBusConnection{
		instance: inst,
		hub:      hub,
		subs:     make([]Subscription, 0),
	}, nil
}

func (c *defaultBusConnection) Open() error  { return nil }
func (c *defaultBusConnection) Close() error { return nil }

// Register registers a subject for local handling.
func (c *defaultBusConnection) Register(sub Subscription) error {
	if sub.Subject == "" {
		return errBusInvalidTarget
	}
	c.mutex.Lock()
	c.subs = append(c.subs, sub)
	c.mutex.Unlock()
	return nil
}

func (c *defaultBusConnection) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.running {
		return errBusRunning
	}

	for _, sub := range c.subs {
		cancel := c.hub.Subscribe(sub.Subject, sub.QueueGroup, func(msg Message) {
			c.instance.Handle(c, msg)
		})
		c.cancels = append(c.cancels, cancel)
	}
	c.running = true
	return nil
}

func (c *defaultBusConnection) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.running {
		return errBusNotRunning
	}

	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
	c.running = false
	return nil
}

// Publish sends data to subject on the hub.
func (c *defaultBusConnection) Publish(subject string, data []byte) error {
	return c.hub.Publish(Message{Subject: subject, Data: data})
}
