package device

import (
	"fmt"
	"sync"

	"github.com/hydroflame/gopencl/v1.2/cl"
)

// MemKind mirrors the opencl buffer access flags a Mem can be allocated
// with.
type MemKind uint8

const (
	MemReadOnly MemKind = iota
	MemWriteOnly
	MemReadWrite
)

func (k MemKind) flags() cl.MemFlags {
	switch k {
	case MemReadOnly:
		return cl.MEM_READ_ONLY
	case MemWriteOnly:
		return cl.MEM_WRITE_ONLY
	default:
		return cl.MEM_READ_WRITE
	}
}

// Stats is the CPU-side allocation-counter contract spec §6 names as an
// external collaborator. Drivers that don't care about accounting can
// pass NoopStats{}.
type Stats interface {
	MemAlloc(bytes int)
	MemFree(bytes int)
}

// NoopStats discards every call.
type NoopStats struct{}

func (NoopStats) MemAlloc(int) {}
func (NoopStats) MemFree(int)  {}

// Mem is a single named device allocation tracked by a BufferRegistry:
// a texture, a constant buffer, or one field of a SplitKernelArena SoA
// record.
type Mem struct {
	Name string

	buf  *Buffer
	kind MemKind
}

// MemorySize returns the allocation's size in bytes.
func (m *Mem) MemorySize() int {
	return m.buf.Size()
}

// DevicePointer exposes the underlying opencl handle for argument
// binding.
func (m *Mem) DevicePointer() cl.Mem {
	return m.buf.Handle()
}

// Buffer returns the underlying device.Buffer, e.g. for use as a
// *Buffer kernel argument via Kernel.SetArgs.
func (m *Mem) Buffer() *Buffer {
	return m.buf
}

// BufferRegistry is spec §3/§4.3's NamedMemory: named device
// allocations for textures and constants, plus the memory-operation
// contract (mem_alloc/mem_copy_to/mem_copy_from/mem_zero/mem_free/
// const_copy_to/tex_alloc/tex_free). Grounded on the teacher's
// bufferSet (tracer/opencl/buffers.go), generalized from a fixed struct
// of named fields to a name-keyed registry so it matches spec's
// NamedMemory contract exactly.
type BufferRegistry struct {
	device *Device
	stats  Stats

	mu        sync.Mutex
	constants map[string]*Mem
	textures  map[string]*Mem
}

// NewBufferRegistry creates an empty registry bound to dev. stats may be
// NoopStats{} if allocation accounting is not needed.
func NewBufferRegistry(dev *Device, stats Stats) *BufferRegistry {
	if stats == nil {
		stats = NoopStats{}
	}
	return &BufferRegistry{
		device:    dev,
		stats:     stats,
		constants: make(map[string]*Mem),
		textures:  make(map[string]*Mem),
	}
}

// MemAlloc creates a device buffer of the given size and kind. It does
// not register the buffer under any name; callers that need named
// lookup use ConstCopyTo/TexAlloc instead.
func (r *BufferRegistry) MemAlloc(name string, kind MemKind, size int) (*Mem, error) {
	buf := r.device.Buffer(name)
	if err := buf.Allocate(size, kind.flags()); err != nil {
		return nil, err
	}
	r.stats.MemAlloc(size)
	return &Mem{Name: name, buf: buf, kind: kind}, nil
}

// MemCopyTo blocking-writes data (a slice) to m's device buffer.
func (r *BufferRegistry) MemCopyTo(m *Mem, data interface{}) error {
	return m.buf.WriteData(data, 0)
}

// MemCopyFrom blocking-reads a rectangular region of h rows of w
// elements (elemSize bytes each), starting at row y, into dst.
func (r *BufferRegistry) MemCopyFrom(m *Mem, y, w, h, elemSize int, dst interface{}) error {
	offset := y * w * elemSize
	size := w * h * elemSize
	return m.buf.ReadData(offset, 0, size, dst)
}

// MemZero zeroes a host-side buffer of m's size and uploads it,
// matching spec §4.3's "zero host memory then mem_copy_to" contract.
func (r *BufferRegistry) MemZero(m *Mem) error {
	zero := make([]byte, m.MemorySize())
	return m.buf.WriteData(zero, 0)
}

// MemFree releases m's device buffer and accounts the freed bytes.
func (r *BufferRegistry) MemFree(m *Mem) {
	size := m.MemorySize()
	m.buf.Release()
	r.stats.MemFree(size)
}

// ConstCopyTo implements the const_copy_to contract: the first call for
// a given name allocates a read-only buffer and uploads host; every
// subsequent call re-uploads the (possibly changed) host contents into
// the same buffer.
func (r *BufferRegistry) ConstCopyTo(name string, host interface{}, size int) (*Mem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.constants[name]
	if !ok {
		buf := r.device.Buffer(name)
		if err := buf.AllocateToFitData(host, cl.MEM_READ_ONLY); err != nil {
			return nil, fmt.Errorf("opencl device (%s): const_copy_to(%s): %w", r.device.Name, name, err)
		}
		r.stats.MemAlloc(size)
		m = &Mem{Name: name, buf: buf, kind: MemReadOnly}
		r.constants[name] = m
	}

	if err := m.buf.WriteData(host, 0); err != nil {
		return nil, fmt.Errorf("opencl device (%s): const_copy_to(%s): %w", r.device.Name, name, err)
	}
	return m, nil
}

// TexAlloc allocates a read-only buffer, uploads host, and registers it
// under name in the texture map.
func (r *BufferRegistry) TexAlloc(name string, host interface{}) (*Mem, error) {
	buf := r.device.Buffer(name)
	if err := buf.AllocateAndWriteData(host, cl.MEM_READ_ONLY); err != nil {
		return nil, fmt.Errorf("opencl device (%s): tex_alloc(%s): %w", r.device.Name, name, err)
	}
	r.stats.MemAlloc(buf.Size())

	m := &Mem{Name: name, buf: buf, kind: MemReadOnly}

	r.mu.Lock()
	r.textures[name] = m
	r.mu.Unlock()

	return m, nil
}

// TexFree removes a texture identified by its device pointer (a linear
// search over the texture map, matching the original's lookup-by-handle
// since the caller may not know the texture's name) and frees it.
func (r *BufferRegistry) TexFree(devicePtr cl.Mem) error {
	r.mu.Lock()
	var found *Mem
	var foundName string
	for name, m := range r.textures {
		if m.DevicePointer() == devicePtr {
			found = m
			foundName = name
			break
		}
	}
	if found != nil {
		delete(r.textures, foundName)
	}
	r.mu.Unlock()

	if found == nil {
		return fmt.Errorf("opencl device (%s): tex_free: no texture with the given device pointer", r.device.Name)
	}
	r.MemFree(found)
	return nil
}

// Texture looks up a texture by name.
func (r *BufferRegistry) Texture(name string) (*Mem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.textures[name]
	return m, ok
}

// TextureArgBuffer returns the device.Buffer to bind for a texture
// argument: the real texture if name is registered, otherwise the
// device's 1-byte null sentinel buffer (OpenCL rejects a literal null
// kernel argument; see DeviceBase.NullMem). This implements spec
// §4.3's argument-binder texture loop.
func (r *BufferRegistry) TextureArgBuffer(name string) *Buffer {
	if m, ok := r.Texture(name); ok {
		return m.buf
	}
	return r.device.NullMem()
}

// Close releases every constant and texture buffer.
func (r *BufferRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, m := range r.constants {
		m.buf.Release()
		delete(r.constants, name)
	}
	for name, m := range r.textures {
		m.buf.Release()
		delete(r.textures, name)
	}
}
