package marketdata

import (
	"context"

	"FinRank/internal/domain/models"
	drepo "FinRank/internal/domain/repository"
	mid "FinRank/internal/middleware"
)

// TickCollector pulls the live stream and pushes ticks through the
// pipeline into the snapshot cache.
type TickCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.TickPipeline
	metrics drepo.Metrics
}

func NewTickCollector(stream drepo.MarketStream, pipe *mid.TickPipeline, metrics drepo.Metrics) *TickCollector {
	return &TickCollector{stream: stream, pipe: pipe, metrics: metrics}
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
				if tickCh, errCh = c.reconnect(ctx); tickCh == nil {
					return
				}
			}
		case tick, ok := <-tickCh:
			if !ok {
				if tickCh, errCh = c.reconnect(ctx); tickCh == nil {
					return
				}
				continue
			}
			if tick == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, tick)
			}
			c.metrics.RecordLastPrice(tick.Symbol, tick.Price)
		}
	}
}

// reconnect retries until the stream is back or the context ends. The
// stream's own reconnect delay paces the loop.
func (c *TickCollector) reconnect(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("stream_reconnect")
			continue
		}
		return c.stream.Read(ctx)
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
