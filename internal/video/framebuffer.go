package video

// GBColor is a 32-bit RGBA pixel value.
type GBColor uint32

const (
	FramebufferWidth  = 160
	FramebufferHeight = 144
	FramebufferSize   = FramebufferWidth * FramebufferHeight
)

const (
	WhiteColor     GBColor = 0xFFFFFFFF
	LightGreyColor GBColor = 0x989898FF
	DarkGreyColor  GBColor = 0x4C4C4CFF
	BlackColor     GBColor = 0x000000FF
)

// ByteToColor maps a DMG 2-bit shade (0-3, 0=darkest) to a display color.
func ByteToColor(shade byte) GBColor {
	switch shade {
	case 0:
		return BlackColor
	case 1:
		return DarkGreyColor
	case 2:
		return LightGreyColor
	case 3:
		return WhiteColor
	default:
		return BlackColor
	}
}

// FrameBuffer is the 160x144 pixel grid the PPU renders into.
type FrameBuffer struct {
	buffer []uint32
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{buffer: make([]uint32, FramebufferSize)}
}

func (fb *FrameBuffer) Pixel(x, y int) uint32 {
	return fb.buffer[y*FramebufferWidth+x]
}

func (fb *FrameBuffer) SetPixel(x, y int, color GBColor) {
	fb.buffer[y*FramebufferWidth+x] = uint32(color)
}

// Slice returns the raw RGBA pixel grid, row-major, for the host's
// pixel_buf argument to Core.step.
func (fb *FrameBuffer) Slice() []uint32 {
	return fb.buffer
}

func (fb *FrameBuffer) Clear() {
	for i := range fb.buffer {
		fb.buffer[i] = 0
	}
}
