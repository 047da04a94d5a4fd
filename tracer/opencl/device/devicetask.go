package device

// TaskKind tags a DeviceTask with the dispatch it requires, matching
// spec §3's `FILM_CONVERT | SHADER | PATH_TRACE` enumeration.
type TaskKind uint8

const (
	FilmConvert TaskKind = iota
	Shader
	PathTrace
)

func (k TaskKind) String() string {
	switch k {
	case FilmConvert:
		return "FILM_CONVERT"
	case Shader:
		return "SHADER"
	case PathTrace:
		return "PATH_TRACE"
	default:
		return "UNKNOWN"
	}
}

// RenderTile is spec §3's RenderTile: a rectangular region of the
// target image plus the accumulator/RNG-state device pointers it reads
// and writes. The split-kernel strategy carries it further into a
// sub-tile view over a parent tile's buffers via the *Offset* fields.
type RenderTile struct {
	X, Y, W, H int

	StartSample int
	NumSamples  int
	Sample      int

	Stride int
	Offset int

	Buffer   *Mem
	RNGState *Mem

	// Sub-tile view fields (split kernel only): where this sub-tile's
	// origin sits inside the parent tile's Buffer/RNGState.
	BufferOffsetX, BufferOffsetY       int
	RNGStateOffsetX, RNGStateOffsetY   int
	BufferRNGStateStride               int
}

// DeviceRequestedFeatures is the compiled-in shading-feature set spec §6
// names as an external collaborator: max_closure bounds per-shader
// closure storage, and is the value SplitKernel rounds to a multiple of
// 5 in interactive mode (spec §4.5, §8 Boundary).
type DeviceRequestedFeatures struct {
	MaxClosure     int
	MaxNodesGroup  int
	NodesFeatures  uint32
}

// DeviceTask is spec §3's tagged task request. AcquireTile/ReleaseTile/
// UpdateProgress/GetCancel are the external scheduler's callbacks
// (spec §1's "top-level render session/tile scheduler" collaborator);
// the Worker only calls them, never implements them.
type DeviceTask struct {
	Kind TaskKind

	// PATH_TRACE
	NumSamples      int
	NeedFinishQueue bool

	// FILM_CONVERT
	RGBAByte *Mem
	RGBAHalf *Mem

	// SHADER
	ShaderInput    *Mem
	ShaderOutput   *Mem
	ShaderEvalType int // selects kernel_ocl_shader vs kernel_ocl_bake at >= shaderEvalBake
	ShaderEval     int // offset into ShaderInput/Output, original's shader_x
	ShaderCount    int

	Features DeviceRequestedFeatures

	AcquireTile    func() (*RenderTile, bool)
	ReleaseTile    func(tile *RenderTile)
	UpdateProgress func(tile *RenderTile, sample int)
	GetCancel      func() bool
}

func (t *DeviceTask) cancelled() bool {
	return t.GetCancel != nil && t.GetCancel()
}
