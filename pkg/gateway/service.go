// Package gateway wires the chat transport, the translation pipeline, and the
// control endpoint into one runnable service.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"lingorelay/pkg/bot"
	"lingorelay/pkg/bus"
	"lingorelay/pkg/channel"
	"lingorelay/pkg/config"
	"lingorelay/pkg/echo"
	"lingorelay/pkg/queue"
)

const (
	adapterRestartDelay = 5 * time.Second
	drainTimeout        = 30 * time.Second
)

// Translator is the translation engine surface the service manages: per-call
// translation plus configuration swaps on hot reload.
type Translator interface {
	bot.Translator
	Apply(cfg *config.Config)
}

// Service owns the relay's moving parts and their lifecycle: the transport
// adapter (restartable for pause/resume), the bus consumer loop, and the
// control HTTP endpoint.
type Service struct {
	runtime    *bot.Runtime
	guard      *echo.Guard
	queue      *queue.Queue
	translator Translator
	adapter    channel.Adapter
	bus        *bus.MessageBus
	processor  *bot.Processor
	log        *slog.Logger

	// reload re-reads the configuration source; swapped in tests.
	reload func() (*config.Config, error)

	ready atomic.Bool

	mu            sync.Mutex
	baseCtx       context.Context
	adapterCancel context.CancelFunc
	adapterDone   chan struct{}
	paused        bool
}

func NewService(cfg *config.Config, adapter channel.Adapter, translator Translator, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if adapter == nil {
		return nil, errors.New("channel adapter is required")
	}
	if translator == nil {
		return nil, errors.New("translator is required")
	}
	if log == nil {
		log = slog.Default()
	}

	runtime := bot.NewRuntime(cfg)
	guard := echo.NewGuard(echo.DefaultTTL)
	q := queue.New(cfg.QueueCapacity)

	return &Service{
		runtime:    runtime,
		guard:      guard,
		queue:      q,
		translator: translator,
		adapter:    adapter,
		bus:        bus.NewMessageBus(),
		processor:  bot.NewProcessor(runtime, guard, q, translator, adapter, log),
		log:        log.With("component", "gateway.service"),
		reload:     config.Load,
	}, nil
}

// Run starts the control server, the transport adapter, and the bus consumer
// loop, then blocks until ctx is canceled or the control server fails. On
// shutdown it stops the adapter and waits, bounded, for queued translations
// to settle.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	serverErrors := make(chan error, 1)
	if s.runtime.Config().Control.Enabled {
		go s.runControlServer(ctx, serverErrors)
	}

	s.startAdapter()

	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		for {
			msg, ok := s.bus.ConsumeInbound(ctx)
			if !ok {
				return
			}
			s.processor.Process(ctx, msg)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	}

	s.stopAdapter()
	s.bus.Close()
	<-consumeDone

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := s.queue.Drain(drainCtx); err != nil {
		s.log.Warn("Shutdown with translations still queued", "depth", s.queue.Depth())
	}

	return runErr
}

// startAdapter launches the transport loop. The adapter reconnects after
// failures until its context is canceled; pipeline state (dedup, echo, queue)
// survives restarts.
func (s *Service) startAdapter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapterCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	s.adapterCancel = cancel
	s.adapterDone = done
	s.paused = false

	go func() {
		defer close(done)
		for {
			s.ready.Store(true)
			err := s.adapter.Run(ctx, s.bus)
			s.ready.Store(false)

			if ctx.Err() != nil {
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("Channel stopped, restarting",
					"channel", s.adapter.Name(),
					"delay", adapterRestartDelay,
					"error", err,
				)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(adapterRestartDelay):
			}
		}
	}()
}

// stopAdapter cancels the transport loop and waits for it to exit.
func (s *Service) stopAdapter() {
	s.mu.Lock()
	cancel := s.adapterCancel
	done := s.adapterDone
	s.adapterCancel = nil
	s.adapterDone = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Pause detaches the relay from the transport. Queued translations keep
// running; dedup and echo state stay warm for resume.
func (s *Service) Pause() {
	s.mu.Lock()
	alreadyPaused := s.paused
	s.mu.Unlock()
	if alreadyPaused {
		return
	}

	s.stopAdapter()

	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()

	s.log.Info("Relay paused", "channel", s.adapter.Name())
}

// Resume reattaches a paused relay to the transport.
func (s *Service) Resume() {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.startAdapter()
	s.log.Info("Relay resumed", "channel", s.adapter.Name())
}

// Paused reports whether the relay is detached from the transport.
func (s *Service) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Reload re-reads and validates the configuration, then swaps it into the
// running pipeline: active pair set, translation credentials and pacing, and
// queue capacity. A failed read or validation leaves the previous
// configuration fully in force. Control endpoint binding changes take effect
// on the next process start.
func (s *Service) Reload() error {
	cfg, err := s.reload()
	if err != nil {
		return err
	}

	s.runtime.ApplyConfig(cfg)
	s.translator.Apply(cfg)
	s.queue.SetCapacity(cfg.QueueCapacity)

	s.log.Info("Configuration reloaded",
		"pairs", len(cfg.Pairs),
		"mode", s.runtime.CurrentPair().Key,
		"queue_capacity", cfg.QueueCapacity,
	)
	return nil
}
