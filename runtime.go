package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
)

type (
	// Module is a component driven by the runtime lifecycle.
	Module interface {
		Open() error
		Start() error
		Stop() error
		Close() error
	}

	// Runtime opens and starts modules in mount order and stops and closes
	// them in reverse order.
	Runtime struct {
		mutex   sync.Mutex
		modules []Module
		logger  *slog.Logger

		opened  int
		started int
	}
)

func NewRuntime(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		modules: make([]Module, 0),
		logger:  logger,
	}
}

// Mount attaches a module into the lifecycle.
func (rt *Runtime) Mount(mod Module) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	// check if the module is already mounted
	if mod == nil || slices.Contains(rt.modules, mod) {
		return
	}
	rt.modules = append(rt.modules, mod)
}

// Open connects all modules. On failure the modules already opened are
// closed again.
func (rt *Runtime) Open() error {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	for rt.opened < len(rt.modules) {
		idx := rt.opened
		if err := rt.modules[idx].Open(); err != nil {
			_ = rt.closeOpened()
			return fmt.Errorf("open module %d: %w", idx, err)
		}
		rt.opened++
	}
	return nil
}

// Start launches all opened modules.
func (rt *Runtime) Start() error {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	for rt.started < rt.opened {
		if err := rt.modules[rt.started].Start(); err != nil {
			return fmt.Errorf("start module %d: %w", rt.started, err)
		}
		rt.started++
	}
	return nil
}

// Stop terminates started modules in reverse order.
func (rt *Runtime) Stop() error {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	var errs []error
	for rt.started > 0 {
		rt.started--
		if err := rt.modules[rt.started].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases opened modules in reverse order.
func (rt *Runtime) Close() error {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()
	return rt.closeOpened()
}

func (rt *Runtime) closeOpened() error {
	var errs []error
	for rt.opened > 0 {
		rt.opened--
		if err := rt.modules[rt.opened].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run opens and starts all modules, blocks until ctx is done or a
// termination signal arrives, then stops and closes them.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := rt.Open(); err != nil {
		return err
	}
	if err := rt.Start(); err != nil {
		_ = rt.Stop()
		_ = rt.Close()
		return err
	}
	rt.logger.Info("runtime started", "modules", len(rt.modules))

	<-ctx.Done()

	rt.logger.Info("runtime stopping")
	return errors.Join(rt.Stop(), rt.Close())
}
