package texture

type Format uint32

const (
	Luminance8 Format = iota
	Luminance32F
	Rgba8
	Rgba32F
)
