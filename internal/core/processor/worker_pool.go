package processor

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"facespace/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned for jobs submitted after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// WorkerPool runs recognition jobs on a fixed number of goroutines.
type WorkerPool struct {
	service         *Service
	jobs            chan *recognizeJob
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
	shutdownOnce    sync.Once
	wg              sync.WaitGroup
}

type recognizeJob struct {
	ctx      context.Context
	img      image.Image
	regions  []image.Rectangle
	source   string
	resultCh chan *jobResult
}

type jobResult struct {
	results []models.RecognitionResult
	err     error
}

// BatchItem is one image of a batch request.
type BatchItem struct {
	Source string
	Image  image.Image
}

// BatchResult is the outcome of one batch item.
type BatchResult struct {
	Source  string                     `json:"source"`
	Results []models.RecognitionResult `json:"results,omitempty"`
	Err     error                      `json:"-"`
}

// NewWorkerPool starts workerCount workers for service.
func NewWorkerPool(service *Service, workerCount int) *WorkerPool {
	workerCount = max(1, workerCount)
	log.Infof("Initializing recognition worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		service:     service,
		jobs:        make(chan *recognizeJob, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case job := <-p.jobs:
					p.run(workerID, job)
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) run(workerID int, job *recognizeJob) {
	p.activeJobsMutex.Lock()
	p.activeJobs++
	jobCount := p.activeJobs
	p.activeJobsMutex.Unlock()

	log.Debugf("Worker %d recognizing image from %s (active jobs: %d)", workerID, job.source, jobCount)
	start := time.Now()

	results, err := p.service.Recognize(job.ctx, job.img, job.regions, job.source)

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.activeJobsMutex.Unlock()

	// resultCh is buffered, the submitter may already have given up.
	job.resultCh <- &jobResult{results: results, err: err}
	log.Debugf("Worker %d completed recognition in %v", workerID, time.Since(start))
}

// Recognize runs Service.Recognize on a worker and waits for the result.
func (p *WorkerPool) Recognize(ctx context.Context, img image.Image, regions []image.Rectangle, source string) ([]models.RecognitionResult, error) {
	resultCh := make(chan *jobResult, 1)
	job := &recognizeJob{
		ctx:      ctx,
		img:      img,
		regions:  regions,
		source:   source,
		resultCh: resultCh,
	}

	select {
	case <-p.shutdown:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- job:
	case <-p.shutdown:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-resultCh:
		return result.results, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		// A running job still delivers its result before the workers exit.
		p.wg.Wait()
		select {
		case result := <-resultCh:
			return result.results, result.err
		default:
			return nil, ErrPoolClosed
		}
	}
}

// RecognizeBatch recognizes the whole area of every item concurrently and
// returns the results in item order.
func (p *WorkerPool) RecognizeBatch(ctx context.Context, items []BatchItem) []BatchResult {
	out := make([]BatchResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		out[i].Source = item.Source
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()
			out[i].Results, out[i].Err = p.Recognize(ctx, item.Image, WholeImage(item.Image), item.Source)
		}(i, item)
	}
	wg.Wait()
	return out
}

// ActiveJobCount returns the number of jobs currently being processed.
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount returns the number of workers.
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// GetQueueCapacity returns the job queue capacity.
func (p *WorkerPool) GetQueueCapacity() int {
	return cap(p.jobs)
}

// QueueLength returns the number of queued jobs.
func (p *WorkerPool) QueueLength() int {
	return len(p.jobs)
}

// Shutdown stops the workers after their current job and waits for them.
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}
