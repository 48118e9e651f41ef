package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leadrail/automation-engine/internal/automation/domain"
	"github.com/leadrail/automation-engine/internal/shared/infrastructure/eventbus"
)

// ProcessorConfig holds configuration for the queue processor.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	RetryBackoff time.Duration
}

// DefaultProcessorConfig returns sensible defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    10,
		Concurrency:  3,
		RetryBackoff: domain.DefaultRetryBackoff,
	}
}

// ProcessorStats counts what the processor has done since it started.
type ProcessorStats struct {
	Polls             int64      `json:"polls"`
	PollsSkipped      int64      `json:"polls_skipped"`
	Claimed           int64      `json:"claimed"`
	Completed         int64      `json:"completed"`
	Retried           int64      `json:"retried"`
	FailedPermanently int64      `json:"failed_permanently"`
	LastPollAt        *time.Time `json:"last_poll_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
}

// Processor polls the queue for due pending items and runs them through the
// executor. Only one batch is in flight per processor instance; a poll that
// fires while the previous batch is still running is skipped rather than
// stacked.
type Processor struct {
	queue       domain.QueueRepository
	automations domain.AutomationRepository
	events      domain.TriggerEventRepository
	executions  domain.ExecutionRepository
	executor    *Executor
	publisher   eventbus.Publisher
	config      ProcessorConfig
	logger      *slog.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex

	inFlight atomic.Bool

	statsMu sync.Mutex
	stats   ProcessorStats
}

// NewProcessor creates a queue processor. The publisher may be a noop.
func NewProcessor(
	queue domain.QueueRepository,
	automations domain.AutomationRepository,
	events domain.TriggerEventRepository,
	executions domain.ExecutionRepository,
	executor *Executor,
	publisher eventbus.Publisher,
	config ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultProcessorConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProcessorConfig().BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultProcessorConfig().Concurrency
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = domain.DefaultRetryBackoff
	}
	return &Processor{
		queue:       queue,
		automations: automations,
		events:      events,
		executions:  executions,
		executor:    executor,
		publisher:   publisher,
		config:      config,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("queue processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"concurrency", p.config.Concurrency,
	)
	return nil
}

// Stop gracefully stops the processor, waiting for the in-flight batch.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("queue processor stopped")
}

// IsRunning returns true if the polling loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// GetStats returns a snapshot of the processor counters.
func (p *Processor) GetStats() ProcessorStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("queue poll failed", "error", err)
			}
		}
	}
}

// ProcessOnce claims one batch of due items and processes it, returning the
// number of items handled. When a previous batch is still in flight the call
// returns immediately with zero.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.bumpStats(func(s *ProcessorStats) { s.PollsSkipped++ })
		return 0, nil
	}
	defer p.inFlight.Store(false)

	now := time.Now()
	p.bumpStats(func(s *ProcessorStats) {
		s.Polls++
		s.LastPollAt = &now
	})

	items, err := p.queue.ClaimPending(ctx, p.config.BatchSize)
	if err != nil {
		p.bumpStats(func(s *ProcessorStats) { s.LastError = err.Error() })
		return 0, fmt.Errorf("claim pending items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, p.config.Concurrency)
	var batchWG sync.WaitGroup
	handled := 0
	for _, item := range items {
		claimed, err := p.queue.MarkProcessing(ctx, item.ID)
		if err != nil {
			p.logger.Error("failed to mark queue item processing", "queue_item_id", item.ID, "error", err)
			continue
		}
		if !claimed {
			// Another worker won the item between the read and the update.
			continue
		}
		handled++
		p.bumpStats(func(s *ProcessorStats) { s.Claimed++ })

		batchWG.Add(1)
		sem <- struct{}{}
		go func(item *domain.QueueItem) {
			defer batchWG.Done()
			defer func() { <-sem }()
			p.processItem(ctx, item)
		}(item)
	}
	batchWG.Wait()
	return handled, nil
}

// processItem is the per-job error boundary: whatever goes wrong here is
// recorded on the item and the rest of the batch proceeds.
func (p *Processor) processItem(ctx context.Context, item *domain.QueueItem) {
	logger := p.logger.With("queue_item_id", item.ID, "automation_id", item.AutomationID)

	automation, err := p.automations.GetByID(ctx, item.AutomationID)
	if err != nil {
		p.failItem(ctx, item, fmt.Sprintf("load automation: %v", err), logger)
		return
	}
	if automation == nil {
		// The automation was deleted after matching; retrying cannot help.
		p.failPermanent(ctx, item, "automation no longer exists", logger)
		return
	}
	if !automation.IsActive {
		p.failPermanent(ctx, item, "automation was deactivated", logger)
		return
	}

	event, err := p.events.GetByID(ctx, item.TriggerEventID)
	if err != nil {
		p.failItem(ctx, item, fmt.Sprintf("load trigger event: %v", err), logger)
		return
	}
	if event == nil {
		p.failPermanent(ctx, item, "trigger event no longer exists", logger)
		return
	}

	// The running record is persisted before any action fires so a crash
	// mid-execution still leaves a trace of the attempt.
	execution := domain.NewExecution(automation.ID, item.ID, event.ID, event.LeadID)
	if err := p.executions.Create(ctx, execution); err != nil {
		logger.Error("failed to persist execution record", "execution_id", execution.ID, "error", err)
	}
	p.executor.Run(ctx, automation, event, item, execution)
	if err := p.executions.Update(ctx, execution); err != nil {
		logger.Error("failed to finalize execution record", "execution_id", execution.ID, "error", err)
	}
	if err := p.automations.RecordExecution(ctx, automation.ID, execution.Succeeded(), time.Now().UTC()); err != nil {
		logger.Warn("failed to bump automation counters", "error", err)
	}

	if execution.Succeeded() {
		if err := p.queue.MarkCompleted(ctx, item.ID, execution.ID); err != nil {
			logger.Error("failed to mark queue item completed", "error", err)
			return
		}
		p.bumpStats(func(s *ProcessorStats) { s.Completed++ })
		p.publishExecuted(ctx, automation, item, execution)
		logger.Info("queue item completed",
			"execution_id", execution.ID,
			"actions", execution.ActionsAttempted,
			"duration_ms", execution.DurationMs,
		)
		return
	}

	p.failItem(ctx, item, execution.ErrorMessage, logger)
}

func (p *Processor) failItem(ctx context.Context, item *domain.QueueItem, errMsg string, logger *slog.Logger) {
	retried, err := p.queue.MarkFailed(ctx, item.ID, errMsg, p.config.RetryBackoff)
	if err != nil {
		logger.Error("failed to mark queue item failed", "error", err)
		return
	}
	if retried {
		p.bumpStats(func(s *ProcessorStats) { s.Retried++ })
		logger.Warn("queue item scheduled for retry", "reason", errMsg, "backoff", p.config.RetryBackoff)
		return
	}
	p.bumpStats(func(s *ProcessorStats) { s.FailedPermanently++ })
	logger.Error("queue item failed permanently", "reason", errMsg)
}

func (p *Processor) failPermanent(ctx context.Context, item *domain.QueueItem, reason string, logger *slog.Logger) {
	if err := p.queue.MarkFailedPermanent(ctx, item.ID, reason); err != nil {
		logger.Error("failed to mark queue item failed", "error", err)
		return
	}
	p.bumpStats(func(s *ProcessorStats) { s.FailedPermanently++ })
	logger.Error("queue item failed permanently", "reason", reason)
}

func (p *Processor) publishExecuted(ctx context.Context, automation *domain.Automation, item *domain.QueueItem, execution *domain.Execution) {
	if p.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"execution_id":  execution.ID,
		"automation_id": automation.ID,
		"queue_item_id": item.ID,
		"builder_id":    item.BuilderID,
		"status":        execution.Status,
		"actions":       execution.ActionsAttempted,
		"completed_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := p.publisher.Publish(ctx, RoutingKeyExecuted, payload); err != nil {
		p.logger.Warn("failed to publish execution event", "execution_id", execution.ID, "error", err)
	}
}

func (p *Processor) bumpStats(fn func(s *ProcessorStats)) {
	p.statsMu.Lock()
	fn(&p.stats)
	p.statsMu.Unlock()
}
