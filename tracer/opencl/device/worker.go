package device

import (
	"fmt"
	"sync"

	"github.com/achilleasa/go-pathtrace/log"
)

var workerLogger = log.New("worker")

// Worker is spec §4.7/§5: one dedicated background goroutine per
// device, issuing every GPU command from that single thread into the
// device's single in-order queue. Grounded on clTracer's worker
// goroutine (tracer/opencl/tracer.go's blockReqChan/closeChan/wg
// shape), generalized from a single render-block request type to
// task_add/task_wait/task_cancel over a tagged DeviceTask.
type Worker struct {
	mu sync.Mutex
	wg sync.WaitGroup

	dev      *Device
	strategy Strategy

	taskChan  chan workRequest
	closeChan chan struct{}

	cancelMu  sync.Mutex
	cancelled bool

	started bool
}

type workRequest struct {
	task     *DeviceTask
	tile     *RenderTile
	doneChan chan error
}

// NewWorker creates a Worker bound to dev and strategy. Start must be
// called before task_add.
func NewWorker(dev *Device, strategy Strategy) *Worker {
	return &Worker{
		dev:       dev,
		strategy:  strategy,
		taskChan:  make(chan workRequest),
		closeChan: make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it twice is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true

	readyChan := make(chan struct{})
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		close(readyChan)
		for {
			select {
			case req := <-w.taskChan:
				req.doneChan <- w.dispatch(req.task, req.tile)
			case <-w.closeChan:
				return
			}
		}
	}()
	<-readyChan
}

// dispatch runs on the worker goroutine only: it is the single place
// every GPU command for this device is issued from (spec §5's
// "single-thread task pool").
func (w *Worker) dispatch(task *DeviceTask, tile *RenderTile) error {
	task.GetCancel = w.getCancel

	switch task.Kind {
	case PathTrace:
		return w.strategy.PathTrace(task, tile)
	case FilmConvert:
		return w.strategy.FilmConvert(task, tile)
	case Shader:
		return w.strategy.Shader(task)
	default:
		return fmt.Errorf("opencl worker (%s): unknown task kind %s", w.dev.Name, task.Kind)
	}
}

// TaskAdd enqueues task (and, for PATH_TRACE/FILM_CONVERT, the tile it
// applies to) and returns a channel that receives the dispatch result
// once drained. task_wait is TaskAdd followed by a receive on that
// channel; callers that don't need to wait may ignore it.
func (w *Worker) TaskAdd(task *DeviceTask, tile *RenderTile) <-chan error {
	done := make(chan error, 1)
	select {
	case w.taskChan <- workRequest{task: task, tile: tile, doneChan: done}:
	case <-w.closeChan:
		done <- fmt.Errorf("opencl worker (%s): closed", w.dev.Name)
	}
	return done
}

// TaskWait enqueues task and blocks until it has been dispatched and
// has returned.
func (w *Worker) TaskWait(task *DeviceTask, tile *RenderTile) error {
	return <-w.TaskAdd(task, tile)
}

// TaskCancel signals cancellation. Megakernel's per-sample loop polls
// get_cancel() between samples; split-kernel tiles always run to
// convergence and only observe cancellation between PathTrace calls.
// In-flight kernel launches are not interrupted either way (spec §5).
func (w *Worker) TaskCancel() {
	w.cancelMu.Lock()
	w.cancelled = true
	w.cancelMu.Unlock()
}

// ResetCancel clears the cancellation flag ahead of the next task,
// since TaskCancel is level-triggered, not edge-triggered.
func (w *Worker) ResetCancel() {
	w.cancelMu.Lock()
	w.cancelled = false
	w.cancelMu.Unlock()
}

func (w *Worker) getCancel() bool {
	w.cancelMu.Lock()
	defer w.cancelMu.Unlock()
	return w.cancelled
}

// Close signals the worker goroutine to exit and waits for it, then
// releases the strategy and device.
func (w *Worker) Close() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if started {
		close(w.closeChan)
		w.wg.Wait()
	}

	if w.strategy != nil {
		w.strategy.Close()
	}
	workerLogger.Debugf("worker for %s stopped", w.dev.Name)
	w.dev.Close()
}
