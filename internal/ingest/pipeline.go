// Package ingest runs the daemon pipeline: pop event payloads from the
// queue, feed them through the correlation service and forward emitted
// correlations to the configured sink.
package ingest

import (
	"context"
	"sync"
	"time"

	inputredis "threatcorr/internal/input/redis"
	"threatcorr/internal/logger"
	"threatcorr/internal/service"
	"threatcorr/pkg/models"
)

// Pipeline consumes the event queue and sinks correlations.
type Pipeline struct {
	consumer      *inputredis.Consumer
	svc           *service.Service
	sink          CorrelationSink
	workers       int
	batchSize     int
	flushInterval time.Duration
}

// NewPipeline creates the ingest pipeline. The service serializes per-actor
// work internally, so workers can run concurrently.
func NewPipeline(consumer *inputredis.Consumer, svc *service.Service, sink CorrelationSink, workers, batchSize int, flushInterval time.Duration) *Pipeline {
	return &Pipeline{
		consumer:      consumer,
		svc:           svc,
		sink:          sink,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run starts the pipeline loop and blocks until the context is canceled.
func (p *Pipeline) Run(ctx context.Context) error {
	logger.Infof("Ingest pipeline started")

	if p.workers <= 0 {
		p.workers = 4
	}
	if p.batchSize <= 0 {
		p.batchSize = 100
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	msgCh := make(chan []byte, p.workers*4)
	corrCh := make(chan []models.Correlation, p.workers*4)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	var workerWg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			p.workerLoop(ctx, msgCh, corrCh)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		workerWg.Wait()
		close(corrCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(corrCh)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *Pipeline) Close() error {
	if p.sink != nil {
		if err := p.sink.Close(); err != nil {
			logger.Errorf("Failed to close correlation sink: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *Pipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.consumer.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop queue message: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) workerLoop(ctx context.Context, in <-chan []byte, out chan<- []models.Correlation) {
	for payload := range in {
		env, err := ParseEnvelope(payload)
		if err != nil {
			logger.Warnf("Failed to parse event payload: %v", err)
			continue
		}

		_, correlations, err := p.svc.IngestEvent(ctx, models.Event{
			TenantID:   env.TenantID,
			ActorID:    env.ActorID,
			Kind:       env.Kind,
			OccurredAt: env.OccurredAt,
			Details:    env.Details,
		})
		if err != nil {
			logger.Warnf("Failed to ingest event for %s/%s: %v", env.TenantID, env.ActorID, err)
			continue
		}
		if len(correlations) > 0 {
			out <- correlations
		}
	}
}

func (p *Pipeline) writeLoop(in <-chan []models.Correlation) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]models.Correlation, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 || p.sink == nil {
			return
		}
		if err := p.sink.WriteCorrelations(batch); err != nil {
			logger.Errorf("Failed to write %d correlations: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case correlations, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, correlations...)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
