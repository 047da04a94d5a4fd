package device

import (
	"fmt"
	"sync"
	"testing"
)

// fakeStrategy records every dispatch it receives instead of touching a
// real program or kernel, so Worker's task-routing logic can be tested
// independently of a compiled kernel set.
type fakeStrategy struct {
	mu sync.Mutex

	pathTraceCalls   int
	filmConvertCalls int
	shaderCalls      int

	lastTask *DeviceTask
	lastTile *RenderTile

	err error

	closed bool
}

func (f *fakeStrategy) LoadKernels(DeviceRequestedFeatures, bool) error { return nil }

func (f *fakeStrategy) PathTrace(task *DeviceTask, tile *RenderTile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pathTraceCalls++
	f.lastTask, f.lastTile = task, tile
	return f.err
}

func (f *fakeStrategy) FilmConvert(task *DeviceTask, tile *RenderTile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filmConvertCalls++
	f.lastTask, f.lastTile = task, tile
	return f.err
}

func (f *fakeStrategy) Shader(task *DeviceTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shaderCalls++
	f.lastTask = task
	return f.err
}

func (f *fakeStrategy) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func newTestWorker(t *testing.T) (*Worker, *fakeStrategy, *Device) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	strategy := &fakeStrategy{}
	w := NewWorker(dev, strategy)
	w.Start()
	return w, strategy, dev
}

func TestWorkerDispatchesByTaskKind(t *testing.T) {
	w, strategy, _ := newTestWorker(t)
	defer w.Close()

	tile := &RenderTile{}

	if err := w.TaskWait(&DeviceTask{Kind: PathTrace}, tile); err != nil {
		t.Fatal(err)
	}
	if err := w.TaskWait(&DeviceTask{Kind: FilmConvert}, tile); err != nil {
		t.Fatal(err)
	}
	if err := w.TaskWait(&DeviceTask{Kind: Shader}, nil); err != nil {
		t.Fatal(err)
	}

	strategy.mu.Lock()
	defer strategy.mu.Unlock()
	if strategy.pathTraceCalls != 1 || strategy.filmConvertCalls != 1 || strategy.shaderCalls != 1 {
		t.Fatalf("expected exactly one call per task kind; got pathTrace=%d filmConvert=%d shader=%d",
			strategy.pathTraceCalls, strategy.filmConvertCalls, strategy.shaderCalls)
	}
}

func TestWorkerUnknownTaskKind(t *testing.T) {
	w, _, _ := newTestWorker(t)
	defer w.Close()

	err := w.TaskWait(&DeviceTask{Kind: TaskKind(255)}, &RenderTile{})
	if err == nil {
		t.Fatal("expected an error for an unknown task kind")
	}
}

func TestWorkerPropagatesStrategyError(t *testing.T) {
	w, strategy, _ := newTestWorker(t)
	defer w.Close()

	wantErr := fmt.Errorf("boom")
	strategy.mu.Lock()
	strategy.err = wantErr
	strategy.mu.Unlock()

	err := w.TaskWait(&DeviceTask{Kind: PathTrace}, &RenderTile{})
	if err != wantErr {
		t.Fatalf("expected the strategy's error to propagate unchanged; got %v", err)
	}
}

func TestWorkerTaskCancelSetsGetCancel(t *testing.T) {
	w, strategy, _ := newTestWorker(t)
	defer w.Close()

	w.TaskCancel()

	task := &DeviceTask{Kind: PathTrace}
	if err := w.TaskWait(task, &RenderTile{}); err != nil {
		t.Fatal(err)
	}

	strategy.mu.Lock()
	lastTask := strategy.lastTask
	strategy.mu.Unlock()

	if lastTask.GetCancel == nil || !lastTask.GetCancel() {
		t.Fatal("expected TaskCancel to be visible through the dispatched task's GetCancel")
	}

	w.ResetCancel()
	task2 := &DeviceTask{Kind: PathTrace}
	if err := w.TaskWait(task2, &RenderTile{}); err != nil {
		t.Fatal(err)
	}
	strategy.mu.Lock()
	lastTask = strategy.lastTask
	strategy.mu.Unlock()
	if lastTask.GetCancel() {
		t.Fatal("expected ResetCancel to clear cancellation for subsequent tasks")
	}
}

func TestWorkerCloseStopsGoroutineAndClosesStrategy(t *testing.T) {
	w, strategy, _ := newTestWorker(t)

	w.Close()

	strategy.mu.Lock()
	closed := strategy.closed
	strategy.mu.Unlock()
	if !closed {
		t.Fatal("expected Close to close the strategy")
	}

	// TaskAdd after Close must report an error rather than block forever
	// waiting on a taskChan nobody reads from anymore.
	err := w.TaskWait(&DeviceTask{Kind: PathTrace}, &RenderTile{})
	if err == nil {
		t.Fatal("expected TaskAdd after Close to report an error rather than hang")
	}
}

func TestWorkerStartIsIdempotent(t *testing.T) {
	w, strategy, _ := newTestWorker(t)
	defer w.Close()

	w.Start()
	w.Start()

	if err := w.TaskWait(&DeviceTask{Kind: PathTrace}, &RenderTile{}); err != nil {
		t.Fatal(err)
	}
	strategy.mu.Lock()
	calls := strategy.pathTraceCalls
	strategy.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one dispatch goroutine to be running; got %d path-trace calls for one task", calls)
	}
}
