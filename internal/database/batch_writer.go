package database

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ReadingWriter batches reading rows and flushes them to the database in the
// background, keeping disk latency off the ingestion hot path.
type ReadingWriter struct {
	db            *DB
	batchSize     int
	flushInterval time.Duration
	ch            chan *ReadingRow
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewReadingWriter creates a batching reading writer.
func NewReadingWriter(db *DB, batchSize int, flushInterval time.Duration, queueSize int) *ReadingWriter {
	return &ReadingWriter{
		db:            db,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		ch:            make(chan *ReadingRow, queueSize),
		stopCh:        make(chan struct{}),
	}
}

// Start begins the background flush loop.
func (w *ReadingWriter) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop flushes pending rows and stops the writer.
func (w *ReadingWriter) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

// Enqueue queues a row without blocking. When the queue is full the row is
// dropped and reported; ingestion must never wait on storage.
func (w *ReadingWriter) Enqueue(row *ReadingRow) error {
	select {
	case w.ch <- row:
		return nil
	default:
		return fmt.Errorf("reading writer queue full, dropping reading for parameter %s", row.ParameterID)
	}
}

func (w *ReadingWriter) run(ctx context.Context) {
	defer w.wg.Done()

	var batch []*ReadingRow
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.db.InsertReadingBatch(ctx, batch); err != nil {
			fmt.Printf("Failed to flush reading batch (%d rows): %v\n", len(batch), err)
		}
		batch = nil
	}

	for {
		select {
		case <-w.stopCh:
			// Drain whatever is still queued before the final flush.
			for {
				select {
				case row := <-w.ch:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}

		case <-ticker.C:
			flush()

		case row := <-w.ch:
			batch = append(batch, row)
			if len(batch) >= w.batchSize {
				flush()
			}
		}
	}
}
