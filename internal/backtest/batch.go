package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"maestro/internal/element"
)

// Assignment maps variable names to the values substituted into one batch
// variant. Values are strings (symbols) or numbers (thresholds, parameters).
type Assignment map[string]any

// BatchOptions bounds batch execution: variants are processed in fixed-size
// chunks, each chunk fanning out over at most MaxWorkers goroutines.
type BatchOptions struct {
	ChunkSize  int
	MaxWorkers int
}

// BatchItem is the outcome of one variant, positioned by its original index.
type BatchItem struct {
	Index  int
	Vars   Assignment
	Result *RunResult
	Err    error
}

// BatchSummary aggregates the successful variants of a batch.
type BatchSummary struct {
	TotalRuns        int     `json:"total_runs"`
	AvgTotalReturn   float64 `json:"avg_total_return"`
	BestTotalReturn  float64 `json:"best_total_return"`
	WorstTotalReturn float64 `json:"worst_total_return"`
}

// ApplyVars resolves $name placeholders in a raw strategy template against
// the assignment. The template is decoded to a generic JSON tree and every
// string value of the form "$name" is replaced by the assignment's value, so
// string placeholders can stand in for numbers as well as symbols. Unbound
// placeholders are an error.
func ApplyVars(template []byte, vars Assignment) ([]element.Element, error) {
	var tree any
	if err := json.Unmarshal(template, &tree); err != nil {
		return nil, fmt.Errorf("parsing strategy template: %w", err)
	}

	resolved, err := resolveVars(tree, vars)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(resolved)
	if err != nil {
		return nil, err
	}
	var elements []element.Element
	if err := json.Unmarshal(encoded, &elements); err != nil {
		return nil, fmt.Errorf("resolved template is not a valid strategy: %w", err)
	}
	return elements, nil
}

func resolveVars(tree any, vars Assignment) (any, error) {
	switch v := tree.(type) {
	case string:
		if !strings.HasPrefix(v, "$") {
			return v, nil
		}
		name := strings.TrimPrefix(v, "$")
		value, ok := vars[name]
		if !ok {
			return nil, fmt.Errorf("unbound variable $%s", name)
		}
		return value, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			resolved, err := resolveVars(child, vars)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			resolved, err := resolveVars(child, vars)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	}
	return tree, nil
}

// RunBatch backtests one parameterized strategy template across many
// variable assignments. Variants are processed in fixed-size chunks with
// bounded concurrency; results keep their original assignment order even
// though chunk members finish out of order. Individual variant failures are
// reported in their BatchItem and excluded from the summary.
func RunBatch(
	ctx context.Context,
	runner *Runner,
	template []byte,
	assignments []Assignment,
	base RunRequest,
	opts BatchOptions,
) ([]BatchItem, BatchSummary, error) {
	if len(assignments) == 0 {
		return nil, BatchSummary{}, fmt.Errorf("batch has no assignments")
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 8
	}
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 4
	}

	items := make([]BatchItem, len(assignments))

	for chunkStart := 0; chunkStart < len(assignments); chunkStart += chunkSize {
		if ctx.Err() != nil {
			return nil, BatchSummary{}, ctx.Err()
		}
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(assignments) {
			chunkEnd = len(assignments)
		}

		jobs := make(chan int, chunkEnd-chunkStart)
		for i := chunkStart; i < chunkEnd; i++ {
			jobs <- i
		}
		close(jobs)

		var wg sync.WaitGroup
		n := workers
		if n > chunkEnd-chunkStart {
			n = chunkEnd - chunkStart
		}
		for w := 0; w < n; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					items[i] = runVariant(ctx, runner, template, assignments[i], i, base)
				}
			}()
		}
		wg.Wait()
	}

	return items, summarize(items), nil
}

func runVariant(ctx context.Context, runner *Runner, template []byte, vars Assignment, index int, base RunRequest) BatchItem {
	item := BatchItem{Index: index, Vars: vars}

	elements, err := ApplyVars(template, vars)
	if err != nil {
		item.Err = err
		return item
	}

	req := base
	req.Elements = elements
	req.Graph = nil

	item.Result, item.Err = runner.Run(ctx, req)
	return item
}

func summarize(items []BatchItem) BatchSummary {
	var s BatchSummary
	first := true
	var sum float64
	for _, item := range items {
		if item.Err != nil || item.Result == nil {
			continue
		}
		tr := item.Result.Metrics.TotalReturn
		s.TotalRuns++
		sum += tr
		if first || tr > s.BestTotalReturn {
			s.BestTotalReturn = tr
		}
		if first || tr < s.WorstTotalReturn {
			s.WorstTotalReturn = tr
		}
		first = false
	}
	if s.TotalRuns > 0 {
		s.AvgTotalReturn = sum / float64(s.TotalRuns)
	}
	return s
}
