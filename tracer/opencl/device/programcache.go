package device

import (
	"sync"

	"github.com/hydroflame/gopencl/v1.2/cl"

	"github.com/achilleasa/go-pathtrace/log"
)

var cacheLogger = log.New("programcache")

// cacheKey identifies a (platform, device) pair inside the process-wide
// program cache.
type cacheKey struct {
	platform cl.PlatformID
	device   cl.DeviceId
}

// programEntry is a cached, reference-counted compiled program.
type programEntry struct {
	program cl.Program
	refs    int
}

// Slot is a ProgramSlot (spec §3/§4.1): one context plus a set of named
// compiled programs, all guarded by a single mutex that serializes both
// context creation and program compilation for one (platform, device).
//
// The Get* methods implement the single-flight handoff described in
// spec §4.1: if the requested value is absent, the method returns with
// the slot mutex still held by the caller, who must finish the producer
// work and call the matching Store* (success) or Abort* (failure, so
// other waiters can retry) before doing anything else with the slot.
type Slot struct {
	mu sync.Mutex

	ctx     *cl.Context
	ctxRefs int

	programs map[string]*programEntry
}

// GetContext returns the cached context if one exists, with its
// reference count incremented. If none exists it returns (nil, true)
// with the slot mutex held by the caller; the caller must create the
// context and call StoreContext, or AbortContext on failure.
func (s *Slot) GetContext() (ctx *cl.Context, mustProduce bool) {
	s.mu.Lock()
	if s.ctx != nil {
		s.ctxRefs++
		ctx = s.ctx
		s.mu.Unlock()
		return ctx, false
	}
	return nil, true
}

// StoreContext installs a freshly created context. Must be called only
// after GetContext returned mustProduce=true, while still holding the
// slot mutex it left locked.
func (s *Slot) StoreContext(ctx *cl.Context) {
	s.ctx = ctx
	s.ctxRefs = 1
	s.mu.Unlock()
}

// AbortContext releases the slot mutex without installing a context,
// after a failed production attempt, so the next caller may retry.
func (s *Slot) AbortContext() {
	s.mu.Unlock()
}

// GetProgram returns the cached program for name if one exists, with
// its reference count incremented. If none exists it returns (nil,
// true) with the slot mutex held; the caller must compile the program
// and call StoreProgram, or AbortProgram on failure.
func (s *Slot) GetProgram(name string) (program cl.Program, mustProduce bool) {
	s.mu.Lock()
	if entry, ok := s.programs[name]; ok {
		entry.refs++
		s.mu.Unlock()
		return entry.program, false
	}
	return nil, true
}

// StoreProgram installs a freshly compiled program under name. Must be
// called only after GetProgram returned mustProduce=true.
func (s *Slot) StoreProgram(name string, program cl.Program) {
	s.programs[name] = &programEntry{program: program, refs: 1}
	s.mu.Unlock()
}

// AbortProgram releases the slot mutex without installing a program,
// after a failed compile, so the next caller may retry.
func (s *Slot) AbortProgram() {
	s.mu.Unlock()
}

// Flush releases every cached context and program and empties the
// slot. Never called in steady state; vendor drivers have been known to
// crash when contexts are released during process teardown, so callers
// should only invoke this from tests or explicit cache-reset paths.
func (s *Slot) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, entry := range s.programs {
		cl.ReleaseProgram(entry.program)
		delete(s.programs, name)
	}
	if s.ctx != nil {
		cl.ReleaseContext(s.ctx)
		s.ctx = nil
		s.ctxRefs = 0
	}
}

// ProgramCache is the process-wide, single-flight (platform,device) ->
// ProgramSlot map described in spec §4.1. Grounded on device_opencl.cpp's
// OpenCLCache class.
type ProgramCache struct {
	mu    sync.Mutex
	slots map[cacheKey]*Slot
}

// NewProgramCache creates an empty cache. Most callers should use
// DefaultProgramCache instead; a fresh cache is mainly useful in tests
// that need isolation from global state.
func NewProgramCache() *ProgramCache {
	return &ProgramCache{slots: make(map[cacheKey]*Slot)}
}

var (
	defaultCacheOnce sync.Once
	defaultCache     *ProgramCache
)

// DefaultProgramCache returns the process-wide singleton cache every
// Device uses unless told otherwise.
func DefaultProgramCache() *ProgramCache {
	defaultCacheOnce.Do(func() {
		defaultCache = NewProgramCache()
	})
	return defaultCache
}

// Slot returns the ProgramSlot for (platform, device), creating it under
// the cache-wide mutex if this is the first request for that pair. The
// cache mutex is released before the caller ever touches the slot
// mutex, matching spec §4.1's "cache mutex released, then slot mutex
// acquired" ordering.
func (c *ProgramCache) Slot(platform cl.PlatformID, device cl.DeviceId) *Slot {
	key := cacheKey{platform: platform, device: device}

	c.mu.Lock()
	slot, ok := c.slots[key]
	if !ok {
		slot = &Slot{programs: make(map[string]*programEntry)}
		c.slots[key] = slot
		cacheLogger.Debugf("created new program slot for platform=%v device=%v", platform, device)
	}
	c.mu.Unlock()

	return slot
}

// Flush releases all cached contexts and programs for every slot and
// empties the cache.
func (c *ProgramCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, slot := range c.slots {
		slot.Flush()
		delete(c.slots, key)
	}
}
