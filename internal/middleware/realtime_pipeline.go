package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
)

// TickSink is the minimal downstream interface the pipeline needs.
type TickSink interface {
	RecordTick(ctx context.Context, tick *models.Tick) error
}

// TickPipeline sits between the WebSocket stream and the snapshot
// cache. It validates, throttles per symbol, and buffers when the
// downstream is unavailable.
type TickPipeline struct {
	sink     TickSink
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.Tick
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the max ticks per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(sink TickSink, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:     sink,
		metrics:  metrics,
		maxRPS:   20,   // default throttle per symbol
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.Tick, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Tick, p.bufSize)
	}
	return p
}

// Start launches background flushing of buffered ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case tick := <-p.bufCh:
				if tick == nil {
					continue
				}
				if err := p.sink.RecordTick(ctx, tick); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- tick:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a tick downstream,
// buffering on errors.
func (p *TickPipeline) Process(ctx context.Context, tick *models.Tick) error {
	start := time.Now()
	if err := validateTick(tick); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(tick.Symbol, start) {
		// throttled; drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.sink.RecordTick(ctx, tick); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- tick:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTick(tick *models.Tick) error {
	if tick == nil {
		return fmt.Errorf("tick nil")
	}
	if tick.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if tick.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if tick.Price <= 0 || tick.Volume < 0 {
		return fmt.Errorf("invalid price/volume")
	}
	return nil
}

func (p *TickPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	minGap := time.Second / time.Duration(p.maxRPS)
	if !last.IsZero() && now.Sub(last) < minGap {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
