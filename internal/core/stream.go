package core

// stream.go drives the row-emission protocol.
//
// A table's resolver produces items in feed order; each item is resolved
// through every column and the resulting Row is pushed to a Sink before the
// next item is looked at. The first failure ends the stream: a bad record is
// never skipped, because a row without its primary key would corrupt
// whatever consumes the stream.

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JonMunkholm/nvdsync/internal/metrics"
)

// Sink receives rows one at a time.
// When several tables sync concurrently, Write may be called from multiple
// goroutines; rows of a single table always arrive in feed order.
type Sink interface {
	Write(ctx context.Context, row Row) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, row Row) error

// Write calls f(ctx, row).
func (f SinkFunc) Write(ctx context.Context, row Row) error {
	return f(ctx, row)
}

// ChanSink forwards rows to a channel, giving up if ctx is cancelled.
type ChanSink chan<- Row

// Write sends row on the channel.
func (c ChanSink) Write(ctx context.Context, row Row) error {
	select {
	case c <- row:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiSink writes each row to every sink in order, stopping at the first error.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, row Row) error {
		for _, s := range sinks {
			if err := s.Write(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// RowCollector is a Sink that keeps rows per table in arrival order.
type RowCollector struct {
	mu   sync.Mutex
	rows map[string][]Row
}

// NewRowCollector creates an empty collector.
func NewRowCollector() *RowCollector {
	return &RowCollector{rows: make(map[string][]Row)}
}

// Write appends row to its table's list.
func (c *RowCollector) Write(_ context.Context, row Row) error {
	c.mu.Lock()
	c.rows[row.Table] = append(c.rows[row.Table], row)
	c.mu.Unlock()
	return nil
}

// Rows returns the collected rows for table.
func (c *RowCollector) Rows(table string) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[table]
}

// Stream resolves every item produced by the table resolver and writes the
// rows to sink in the order the resolver produced them. It returns the
// number of rows written. Each call re-runs the resolver; nothing is cached
// between calls.
func (t *Table) Stream(ctx context.Context, sink Sink) (int, error) {
	if t.Resolver == nil {
		return 0, fmt.Errorf("%s: %w", t.Name, ErrNoResolver)
	}

	emitted := metrics.RowsEmitted.WithLabelValues(t.Name)
	n := 0
	err := t.Resolver(ctx, func(item any) error {
		// Cancellation is honoured between records, never mid-row.
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := t.ResolveRow(item)
		if err != nil {
			var me *MappingError
			if errors.As(err, &me) {
				me.Index = n
			}
			return err
		}

		if err := sink.Write(ctx, row); err != nil {
			return fmt.Errorf("%s: write row %d: %w", t.Name, n, err)
		}
		n++
		emitted.Inc()
		return nil
	})
	if err != nil {
		metrics.StreamFailures.WithLabelValues(t.Name).Inc()
		return n, err
	}
	return n, nil
}
