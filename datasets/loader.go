package datasets

import (
	"io"
	"math/rand"
	"sync"
)

// Loader walks a split in mini-batches.
//
// With Workers > 0 batches are read by a small worker pool that runs at most
// 2*Workers batches ahead of the consumer. Batches are always delivered in the
// same order a single-threaded loader would produce: the order only depends
// on Shuffle, Seed and the epoch number.
type Loader struct {
	DS        Batcher
	BatchSize int
	Shuffle   bool
	Seed      int64
	Workers   int
}

func (l *Loader) batchSize() int {
	if l.BatchSize <= 0 {
		return 32
	}
	return l.BatchSize
}

// NumBatches returns the number of batches per epoch. The last batch may be
// smaller than BatchSize.
func (l *Loader) NumBatches() int {
	n := l.DS.Len()
	bs := l.batchSize()
	return (n + bs - 1) / bs
}

// Order returns the sample order for an epoch.
func (l *Loader) Order(epoch int) []int {
	n := l.DS.Len()
	if l.Shuffle {
		return rand.New(rand.NewSource(l.Seed + int64(epoch))).Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

type batchResult struct {
	batch *Batch
	err   error
}

// Iterator yields the batches of one epoch. Callers must Close it.
type Iterator struct {
	ds     Batcher
	chunks [][]int
	pos    int

	serial bool
	slots  []chan batchResult
	ahead  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// Iter starts an epoch.
func (l *Loader) Iter(epoch int) *Iterator {
	order := l.Order(epoch)
	bs := l.batchSize()
	var chunks [][]int
	for start := 0; start < len(order); start += bs {
		end := start + bs
		if end > len(order) {
			end = len(order)
		}
		chunks = append(chunks, order[start:end])
	}

	it := &Iterator{
		ds:     l.DS,
		chunks: chunks,
		done:   make(chan struct{}),
	}
	if l.Workers <= 0 || len(chunks) == 0 {
		it.serial = true
		return it
	}

	it.slots = make([]chan batchResult, len(chunks))
	for i := range it.slots {
		it.slots[i] = make(chan batchResult, 1)
	}
	it.ahead = make(chan struct{}, 2*l.Workers)

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := range chunks {
			select {
			case it.ahead <- struct{}{}:
			case <-it.done:
				return
			}
			select {
			case jobs <- i:
			case <-it.done:
				return
			}
		}
	}()

	workers := l.Workers
	if workers > len(chunks) {
		workers = len(chunks)
	}
	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				b, err := it.ds.Batch(chunks[i])
				// slots are buffered, one result per slot
				it.slots[i] <- batchResult{batch: b, err: err}
			}
		}()
	}
	return it
}

// Next returns the next batch, or io.EOF when the epoch is exhausted or the
// iterator was closed.
func (it *Iterator) Next() (*Batch, error) {
	if it.pos >= len(it.chunks) {
		return nil, io.EOF
	}
	i := it.pos
	it.pos++
	if it.serial {
		select {
		case <-it.done:
			return nil, io.EOF
		default:
		}
		return it.ds.Batch(it.chunks[i])
	}
	select {
	case r := <-it.slots[i]:
		<-it.ahead
		return r.batch, r.err
	case <-it.done:
		return nil, io.EOF
	}
}

// Close stops prefetching. It is safe to call more than once.
func (it *Iterator) Close() {
	it.closeOnce.Do(func() { close(it.done) })
}
