package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"perfmetrics/internal/domain"
)

// Outcome is the result of computing one symbol: exactly one of Entry and
// Err is set.
type Outcome struct {
	Symbol string
	Entry  *domain.CacheEntry
	Err    error
}

// BatchResult aggregates a RefreshAll run. Failures lists failed symbols in
// input order; Errors holds the reason for each.
type BatchResult struct {
	RunID    string
	Results  map[string]*domain.CacheEntry
	Failures []string
	Errors   map[string]error
}

// RefreshAll computes metrics for every symbol, batchSize symbols at a
// time. Symbols are normalized and deduplicated first. A failing symbol
// never aborts the run; once ctx is cancelled the symbols not yet started
// fail with the context error.
func (e *Engine) RefreshAll(ctx context.Context, symbols []string) BatchResult {
	runID := uuid.NewString()
	log := e.log.With("run", runID)

	res := BatchResult{
		RunID:   runID,
		Results: make(map[string]*domain.CacheEntry),
		Errors:  make(map[string]error),
	}

	var queue []string
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		sym, err := NormalizeSymbol(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		queue = append(queue, sym)
	}

	size := e.opts.BatchSize
	totalBatches := (len(queue) + size - 1) / size
	runStart := time.Now()
	log.Info("refresh started", "symbols", len(queue), "batches", totalBatches, "batch_size", size)

	outcomes := make([]Outcome, 0, len(queue))
	for i := 0; i < len(queue); i += size {
		batch := queue[i:min(i+size, len(queue))]
		if err := ctx.Err(); err != nil {
			for _, sym := range batch {
				outcomes = append(outcomes, Outcome{Symbol: sym, Err: err})
			}
			continue
		}
		outcomes = append(outcomes, e.runBatch(ctx, batch)...)
		log.Debug("batch done", "batch", fmt.Sprintf("%d/%d", i/size+1, totalBatches))
	}

	bySymbol := make(map[string]Outcome, len(outcomes))
	for _, o := range outcomes {
		bySymbol[o.Symbol] = o
	}

	// Report in input order; invalid symbols fail under their raw spelling.
	reported := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		sym, err := NormalizeSymbol(raw)
		if err != nil {
			sym = raw
		}
		if _, done := reported[sym]; done {
			continue
		}
		reported[sym] = struct{}{}

		o, ok := bySymbol[sym]
		if !ok {
			o = Outcome{Symbol: sym, Err: err}
		}
		if o.Err != nil {
			res.Failures = append(res.Failures, o.Symbol)
			res.Errors[o.Symbol] = o.Err
			log.Warn("refresh failed", "symbol", o.Symbol, "err", o.Err)
			continue
		}
		res.Results[o.Symbol] = o.Entry
	}

	log.Info("refresh complete",
		"ok", len(res.Results),
		"failed", len(res.Failures),
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return res
}

// runBatch computes every symbol of batch concurrently and returns the
// outcomes in batch order.
func (e *Engine) runBatch(ctx context.Context, batch []string) []Outcome {
	out := make([]Outcome, len(batch))
	// Outcomes carry the errors; a failing symbol must not cancel its
	// siblings, so the group has no derived context.
	var g errgroup.Group
	for i, sym := range batch {
		g.Go(func() error {
			out[i] = e.refreshOne(ctx, sym)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) refreshOne(ctx context.Context, sym string) (o Outcome) {
	o.Symbol = sym
	defer func() {
		if r := recover(); r != nil {
			o.Entry = nil
			o.Err = fmt.Errorf("%s: panic: %v", sym, r)
		}
	}()
	o.Entry, o.Err = e.GetMetrics(ctx, sym)
	return o
}
