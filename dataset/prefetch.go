package dataset

import (
	"fmt"
	"sync"
)

// Prefetcher wraps a BatchSource and loads batches with a pool of worker
// goroutines. It preserves the BatchSource contract, so an epoch still
// visits every index exactly once; only load latency changes. Batch order
// within an epoch is not guaranteed by the workers, which is fine for
// metric accumulation since the confusion accumulator is commutative.
type Prefetcher struct {
	source  BatchSource
	workers int
	depth   int
}

// NewPrefetcher creates a prefetching wrapper. workers bounds the number of
// concurrent loads; depth bounds how many loaded batches may wait in the
// channel before consumption.
func NewPrefetcher(source BatchSource, workers, depth int) *Prefetcher {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = workers
	}
	return &Prefetcher{source: source, workers: workers, depth: depth}
}

// Len returns the wrapped source's batch count.
func (p *Prefetcher) Len() int {
	return p.source.Len()
}

// NumClasses returns the wrapped source's class count.
func (p *Prefetcher) NumClasses() int {
	return p.source.NumClasses()
}

// ColorEncoding returns the wrapped source's color table.
func (p *Prefetcher) ColorEncoding() []ClassColor {
	return p.source.ColorEncoding()
}

// Batch delegates to the wrapped source. Direct indexed access is kept so
// the Prefetcher still satisfies BatchSource.
func (p *Prefetcher) Batch(i int) (*Batch, error) {
	return p.source.Batch(i)
}

// IndexedBatch pairs a loaded batch with the index it was loaded from.
type IndexedBatch struct {
	Index int
	Batch *Batch
	Err   error
}

// Epoch streams one full epoch of batches through the worker pool. The
// returned channel is closed after all Len() batches have been delivered.
// A load failure is delivered in-stream with its index so the consumer can
// abort the run with context.
func (p *Prefetcher) Epoch() <-chan IndexedBatch {
	out := make(chan IndexedBatch, p.depth)
	indices := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				batch, err := p.source.Batch(i)
				if err == nil {
					err = batch.Validate()
				}
				if err != nil {
					err = fmt.Errorf("batch %d: %v", i, err)
				}
				out <- IndexedBatch{Index: i, Batch: batch, Err: err}
			}
		}()
	}

	go func() {
		for i := 0; i < p.source.Len(); i++ {
			indices <- i
		}
		close(indices)
		wg.Wait()
		close(out)
	}()

	return out
}
