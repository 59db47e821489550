package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/entity"
	"erp-sync-service/internal/logger"
)

// Syncer runs one sync request. *Engine is the production implementation.
type Syncer interface {
	Sync(ctx context.Context, kind entity.Kind, filter entity.Filter) Outcome
}

// WorkerPool runs jobs through a Syncer with a fixed number of workers. Each
// worker pauses for delay after every job to spare the ERP.
type WorkerPool struct {
	syncer  Syncer
	workers int
	delay   time.Duration
}

func NewWorkerPool(syncer Syncer, workers int, delay time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{syncer: syncer, workers: workers, delay: delay}
}

type indexedJob struct {
	idx int
	job Job
}

// Run executes jobs and returns one result per job in job order. Jobs not
// started before ctx is done are reported as errors.
func (p *WorkerPool) Run(ctx context.Context, jobs []Job) []ChunkResult {
	results := make([]ChunkResult, len(jobs))
	queue := make(chan indexedJob)

	var wg sync.WaitGroup
	logger.Log.Info("Starting worker pool", zap.Int("workers", p.workers), zap.Int("jobs", len(jobs)))
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id, queue, results)
		}(i)
	}

	for i, j := range jobs {
		select {
		case queue <- indexedJob{idx: i, job: j}:
		case <-ctx.Done():
			for k := i; k < len(jobs); k++ {
				results[k] = canceled(jobs[k], ctx.Err())
			}
			close(queue)
			wg.Wait()
			return results
		}
	}
	close(queue)
	wg.Wait()
	return results
}

func (p *WorkerPool) work(ctx context.Context, id int, queue <-chan indexedJob, results []ChunkResult) {
	for ij := range queue {
		if ctx.Err() != nil {
			results[ij.idx] = canceled(ij.job, ctx.Err())
			continue
		}
		out := p.syncer.Sync(ctx, ij.job.Kind, ij.job.Filter)
		results[ij.idx] = ChunkResult{Chunk: ij.job.Chunk, Outcome: out}
		logger.Log.Debug("Chunk done",
			zap.Int("workerID", id),
			zap.String("entity", out.Entity),
			zap.String("chunk", ij.job.Chunk),
			zap.String("status", string(out.Status)),
		)

		if p.delay > 0 {
			t := time.NewTimer(p.delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
	}
}

func canceled(j Job, err error) ChunkResult {
	return ChunkResult{
		Chunk: j.Chunk,
		Outcome: Outcome{
			Entity: j.Kind.Name(),
			Status: OutcomeError,
			Error:  err.Error(),
		},
	}
}
