package video

import (
	"testing"

	"github.com/vkeeler/dmgcore/internal/addr"
)

// fakeBus is a minimal Bus for PPU unit tests: a flat 64KiB array with no
// banking, MBC, or side effects beyond what the PPU itself writes.
type fakeBus struct {
	mem       [0x10000]byte
	interrupt addr.Interrupt
}

func newFakeBus() *fakeBus {
	b := &fakeBus{}
	b.mem[addr.LCDC] = 0x91
	b.mem[addr.BGP] = 0xE4
	return b
}

func (b *fakeBus) Read(address uint16) byte         { return b.mem[address] }
func (b *fakeBus) Write(address uint16, value byte) { b.mem[address] = value }
func (b *fakeBus) ReadBit(index uint8, address uint16) bool {
	return (b.mem[address]>>index)&1 == 1
}
func (b *fakeBus) RequestInterrupt(interrupt addr.Interrupt) { b.interrupt |= interrupt }

func TestPPU_ScanlineTiming(t *testing.T) {
	bus := newFakeBus()
	p := New(bus)
	p.mode = OAMScan
	p.line = 0

	for i := 0; i < oamScanCycles+transferCycles+hblankCycles-1; i++ {
		p.Tick(1)
	}
	if p.line != 0 {
		t.Fatalf("line = %d before a full scanline elapses, want 0 (unchanged)", p.line)
	}
	p.Tick(1)
	if p.line != 1 {
		t.Fatalf("line = %d after one scanline elapses, want 1", p.line)
	}
}

func TestPPU_FrameReadyAtVBlank(t *testing.T) {
	bus := newFakeBus()
	p := New(bus)
	p.line = 143
	p.mode = HBlank
	p.cycles = hblankCycles

	ready := p.Tick(1)
	if !ready {
		t.Fatalf("expected frameReady at the HBLANK->VBLANK transition into line 144")
	}
	if bus.interrupt&addr.VBlankInterrupt == 0 {
		t.Fatalf("expected VBLANK interrupt to be requested")
	}
}

func TestPPU_FullFrameCycleCount(t *testing.T) {
	bus := newFakeBus()
	p := New(bus)

	frames := 0
	for i := 0; i < framesCycles*2; i++ {
		if p.Tick(1) {
			frames++
		}
	}
	if frames != 2 {
		t.Fatalf("got %d frames in %d cycles, want 2", frames, framesCycles*2)
	}
}

func TestPPU_BackgroundSolidTile(t *testing.T) {
	bus := newFakeBus()
	// Tile 0 at 0x8000: every row all-white (color id 3).
	for row := 0; row < 8; row++ {
		bus.mem[0x8000+uint16(row*2)] = 0xFF
		bus.mem[0x8000+uint16(row*2+1)] = 0xFF
	}
	bus.mem[0x9800] = 0 // tile map entry 0 -> tile 0

	p := New(bus)
	p.line = 0
	p.mode = Transfer
	p.drawScanline()

	if got := p.fb.Pixel(0, 0); got != uint32(WhiteColor) {
		t.Errorf("Pixel(0,0) = 0x%08X, want white", got)
	}
}

func TestPPU_SpriteTransparentColorZero(t *testing.T) {
	bus := newFakeBus()
	bus.mem[addr.LCDC] = 0x93 // LCD + BG + sprites enabled
	// sprite tile: all pixels color id 0 (transparent)
	for row := 0; row < 8; row++ {
		bus.mem[0x8000+uint16(row*2)] = 0x00
		bus.mem[0x8000+uint16(row*2+1)] = 0x00
	}
	// OAM entry 0: Y=16 (screen y=0), X=8 (screen x=0), tile 0
	bus.mem[addr.OAMStart] = 16
	bus.mem[addr.OAMStart+1] = 8
	bus.mem[addr.OAMStart+2] = 0
	bus.mem[addr.OAMStart+3] = 0

	p := New(bus)
	p.line = 0
	p.mode = Transfer

	p.drawBackground(bus.mem[addr.LCDC])
	before := p.fb.Pixel(0, 0)
	p.drawScanline()
	if got := p.fb.Pixel(0, 0); got != before {
		t.Errorf("transparent sprite pixel changed the background: got 0x%08X, want unchanged 0x%08X", got, before)
	}
}
