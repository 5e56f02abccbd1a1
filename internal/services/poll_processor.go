package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spendlog/internal/log"
)

// Refresher re-derives and exports state from the shared store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// PollProcessorConfig holds configuration for the poll processor
type PollProcessorConfig struct {
	// PollInterval is how often to refresh (default: 1m)
	PollInterval time.Duration

	// MaxRetries is how many consecutive failures are logged as warnings
	// before they are logged as errors (default: 3)
	MaxRetries int
}

// DefaultPollProcessorConfig returns sensible defaults
func DefaultPollProcessorConfig() PollProcessorConfig {
	return PollProcessorConfig{
		PollInterval: time.Minute,
		MaxRetries:   3,
	}
}

// PollProcessor refreshes on a timer. The worker runs it when no message
// broker is configured, and alongside the consumer to cover lost messages.
type PollProcessor struct {
	target Refresher
	config PollProcessorConfig
	logger *log.Logger

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	failures int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewPollProcessor(target Refresher, config PollProcessorConfig, logger *log.Logger) *PollProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollProcessorConfig().PollInterval
	}
	return &PollProcessor{
		target: target,
		config: config,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *PollProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poll processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Poll processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *PollProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Poll processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Poll processor stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the processor is currently running
func (p *PollProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PollProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Refresh immediately on startup
	p.refresh(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *PollProcessor) refresh(ctx context.Context) {
	err := p.target.Refresh(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.failures = 0
		return
	}
	p.failures++
	if p.failures > p.config.MaxRetries {
		p.logger.ErrorContext(ctx, "Refresh keeps failing", log.FieldError, err, "failures", p.failures)
		return
	}
	p.logger.WarnContext(ctx, "Refresh failed", log.FieldError, err, "failures", p.failures)
}
