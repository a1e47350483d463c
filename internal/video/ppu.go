// Package video implements the DMG's picture processing unit: the
// OAM/HBLANK/VBLANK/TRANSFER scanline state machine, background/window/
// sprite compositing, and the resulting 160x144 frame buffer.
package video

import (
	"github.com/vkeeler/dmgcore/internal/addr"
	"github.com/vkeeler/dmgcore/internal/bit"
)

// Bus is the narrow memory interface the PPU needs: VRAM/OAM/register
// reads, STAT/LY writes, and interrupt requests.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	ReadBit(index uint8, address uint16) bool
	RequestInterrupt(interrupt addr.Interrupt)
}

// Mode is the PPU's current stage; these values match STAT bits 1-0.
type Mode int

const (
	HBlank  Mode = 0
	VBlank  Mode = 1
	OAMScan Mode = 2
	Transfer Mode = 3
)

const (
	oamScanCycles  = 80
	transferCycles = 172
	hblankCycles   = 204
	scanlineCycles = oamScanCycles + transferCycles + hblankCycles // 456
	framesCycles   = scanlineCycles * 154                         // 70224
	vblankLines    = 10
)

// FrameCycles is the fixed 70,224 T-cycle span of one frame (spec §4.3),
// exported so callers outside the package (the core step loop) can bound
// how long they wait for Tick to signal frame completion, since Tick
// never does while the LCD is disabled.
const FrameCycles = framesCycles

// PPU drives the scanline state machine and renders one scanline at the
// TRANSFER->HBLANK edge (spec §4.3).
type PPU struct {
	bus Bus
	fb  *FrameBuffer
	oam *OAM

	bgColorID []byte // per-pixel BG/window color id (0-3) of the current frame, for sprite BG-priority

	mode       Mode
	line       int
	cycles     int
	vblankLine int
	windowLine int
	rendered   bool // whether the current scanline has been drawn yet
}

func New(bus Bus) *PPU {
	return &PPU{
		bus:       bus,
		fb:        NewFrameBuffer(),
		oam:       NewOAM(bus),
		bgColorID: make([]byte, FramebufferSize),
		mode:      VBlank,
		line:      144,
	}
}

func (p *PPU) FrameBuffer() *FrameBuffer { return p.fb }

// Tick advances the PPU by cycles T-cycles, returning true the instant a
// frame completes (VBLANK entry), so the core can hand the frame buffer
// back to the host.
func (p *PPU) Tick(cycles int) (frameReady bool) {
	if !p.bus.ReadBit(7, addr.LCDC) {
		return false
	}

	p.cycles += cycles

	switch p.mode {
	case OAMScan:
		if p.cycles >= oamScanCycles {
			p.cycles -= oamScanCycles
			p.setMode(Transfer)
			p.rendered = false
		}
	case Transfer:
		if p.cycles >= transferCycles {
			p.cycles -= transferCycles
			if !p.rendered {
				p.drawScanline()
				p.rendered = true
			}
			p.setMode(HBlank)
			if p.bus.ReadBit(statHBlankIRQ, addr.STAT) {
				p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
			}
		}
	case HBlank:
		if p.cycles >= hblankCycles {
			p.cycles -= hblankCycles
			p.setLY(p.line + 1)

			if p.line == 144 {
				p.setMode(VBlank)
				p.vblankLine = 0
				p.windowLine = 0
				p.bus.RequestInterrupt(addr.VBlankInterrupt)
				if p.bus.ReadBit(statVBlankIRQ, addr.STAT) {
					p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
				}
				frameReady = true
			} else {
				p.setMode(OAMScan)
				if p.bus.ReadBit(statOAMIRQ, addr.STAT) {
					p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
				}
			}
		}
	case VBlank:
		if p.cycles >= scanlineCycles {
			p.cycles -= scanlineCycles
			p.vblankLine++
			if p.vblankLine <= vblankLines-1 {
				p.setLY(p.line + 1)
			} else {
				p.setLY(0)
				p.setMode(OAMScan)
				if p.bus.ReadBit(statOAMIRQ, addr.STAT) {
					p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
				}
			}
		}
	}

	return frameReady
}

func (p *PPU) drawScanline() {
	lcdc := p.bus.Read(addr.LCDC)
	p.drawBackground(lcdc)
	p.drawWindow(lcdc)
	p.drawSprites(lcdc)
}

func (p *PPU) drawBackground(lcdc byte) {
	lineWidth := p.line * FramebufferWidth

	if !bit.IsSet(0, lcdc) {
		color := uint32(ByteToColor(p.bus.Read(addr.BGP) & 0x03))
		for x := 0; x < FramebufferWidth; x++ {
			p.fb.buffer[lineWidth+x] = color
			p.bgColorID[lineWidth+x] = 0
		}
		return
	}

	signedTileSet := !bit.IsSet(4, lcdc)
	tilesBase := addr.TileData0
	if signedTileSet {
		tilesBase = addr.TileData2
	}
	tileMapBase := addr.TileMap1
	if !bit.IsSet(3, lcdc) {
		tileMapBase = addr.TileMap0
	}

	scx, scy := p.bus.Read(addr.SCX), p.bus.Read(addr.SCY)
	bgY := (p.line + int(scy)) & 0xFF
	mapRow := (bgY / 8) * 32
	rowInTile := bgY % 8

	bgp := p.bus.Read(addr.BGP)

	for x := 0; x < FramebufferWidth; x++ {
		bgX := (x + int(scx)) & 0xFF
		tileValue := p.bus.Read(tileMapBase + uint16(mapRow+bgX/8))
		rowAddr := BGTileDataAddr(tilesBase, signedTileSet, tileValue, rowInTile)
		row := FetchTileRow(p.bus, rowAddr)

		id := row.ColorID(bgX % 8)
		shade := (bgp >> (id * 2)) & 0x03

		pos := lineWidth + x
		p.fb.buffer[pos] = uint32(ByteToColor(shade))
		p.bgColorID[pos] = id
	}
}

func (p *PPU) drawWindow(lcdc byte) {
	if p.windowLine > 143 || !bit.IsSet(5, lcdc) {
		return
	}

	wx := int(p.bus.Read(addr.WX)) - 7
	wy := p.bus.Read(addr.WY)
	if wx >= FramebufferWidth || int(wy) > p.line {
		return
	}

	signedTileSet := !bit.IsSet(4, lcdc)
	tilesBase := addr.TileData0
	if signedTileSet {
		tilesBase = addr.TileData2
	}
	tileMapBase := addr.TileMap1
	if !bit.IsSet(6, lcdc) {
		tileMapBase = addr.TileMap0
	}

	mapRow := (p.windowLine / 8) * 32
	rowInTile := p.windowLine % 8
	lineWidth := p.line * FramebufferWidth
	bgp := p.bus.Read(addr.BGP)

	for tileX := 0; tileX < 32; tileX++ {
		xOffset := tileX*8 + wx
		if xOffset+7 < 0 || xOffset >= FramebufferWidth {
			continue
		}

		tileValue := p.bus.Read(tileMapBase + uint16(mapRow+tileX))
		rowAddr := BGTileDataAddr(tilesBase, signedTileSet, tileValue, rowInTile)
		row := FetchTileRow(p.bus, rowAddr)

		for px := 0; px < 8; px++ {
			bufferX := xOffset + px
			if bufferX < wx || bufferX >= FramebufferWidth {
				continue
			}

			id := row.ColorID(px)
			shade := (bgp >> (id * 2)) & 0x03

			pos := lineWidth + bufferX
			p.fb.buffer[pos] = uint32(ByteToColor(shade))
			p.bgColorID[pos] = id
		}
	}

	p.windowLine++
}

func (p *PPU) drawSprites(lcdc byte) {
	if !bit.IsSet(1, lcdc) {
		return
	}

	spriteHeight := 8
	if bit.IsSet(2, lcdc) {
		spriteHeight = 16
	}

	lineWidth := p.line * FramebufferWidth
	sprites := p.oam.ForScanline(p.line, spriteHeight)

	for i := range sprites {
		s := &sprites[i]
		if s.PixelMask == 0 {
			continue // lost every pixel to a higher-priority sprite
		}

		tileMask := 0xFF
		if spriteHeight == 16 {
			tileMask = 0xFE
		}

		rowInSprite := p.line - s.Y
		if s.FlipY {
			rowInSprite = spriteHeight - 1 - rowInSprite
		}
		tileIndex := int(s.TileIndex) & tileMask
		if spriteHeight == 16 && rowInSprite >= 8 {
			tileIndex++
			rowInSprite -= 8
		}

		rowAddr := addr.TileData0 + uint16(tileIndex*16+rowInSprite*2)
		row := FetchTileRow(p.bus, rowAddr)

		paletteAddr := addr.OBP0
		if s.PaletteOBP1 {
			paletteAddr = addr.OBP1
		}
		palette := p.bus.Read(paletteAddr)

		for px := 0; px < 8; px++ {
			if !s.HasPixel(px) {
				continue
			}

			bufferX := s.X + px
			if bufferX < 0 || bufferX >= FramebufferWidth {
				continue
			}

			var id byte
			if s.FlipX {
				id = row.ColorIDFlipped(px)
			} else {
				id = row.ColorID(px)
			}
			if id == 0 {
				continue // color 0 is always transparent for sprites
			}

			pos := lineWidth + bufferX
			if s.BehindBG && p.bgColorID[pos] != 0 {
				continue
			}

			shade := (palette >> (id * 2)) & 0x03
			p.fb.buffer[pos] = uint32(ByteToColor(shade))
		}
	}
}

// STAT interrupt-source bit positions.
const (
	statLYCIrq    = 6
	statOAMIRQ    = 5
	statVBlankIRQ = 4
	statHBlankIRQ = 3
	statLYCEqual  = 2
)

func (p *PPU) setMode(mode Mode) {
	p.mode = mode
	stat := p.bus.Read(addr.STAT)
	stat = stat&0xFC | byte(mode)
	p.bus.Write(addr.STAT, stat)
}

func (p *PPU) setLY(line int) {
	p.line = line
	p.bus.Write(addr.LY, byte(p.line))
	p.compareLYC()
}

func (p *PPU) compareLYC() {
	ly := p.bus.Read(addr.LY)
	lyc := p.bus.Read(addr.LYC)
	stat := p.bus.Read(addr.STAT)

	if ly == lyc {
		stat = bit.Set(statLYCEqual, stat)
		if bit.IsSet(statLYCIrq, stat) {
			p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
		}
	} else {
		stat = bit.Reset(statLYCEqual, stat)
	}

	p.bus.Write(addr.STAT, stat)
}

// State is the PPU's gob-serializable snapshot (spec §6 Snapshot): the
// scanline state machine's internal counters and the current frame
// buffer. VRAM/OAM themselves live on the bus and are captured by the
// memory package's own State.
type State struct {
	Mode          Mode
	Line          int
	Cycles        int
	VBlankLine    int
	WindowLine    int
	Rendered      bool
	FrameBuffer   [FramebufferSize]uint32
	BGColorID     []byte
}

// SaveState captures the scanline machine's counters and current frame.
func (p *PPU) SaveState() State {
	s := State{
		Mode:       p.mode,
		Line:       p.line,
		Cycles:     p.cycles,
		VBlankLine: p.vblankLine,
		WindowLine: p.windowLine,
		Rendered:   p.rendered,
		BGColorID:  append([]byte(nil), p.bgColorID...),
	}
	copy(s.FrameBuffer[:], p.fb.buffer)
	return s
}

// LoadState restores a previously captured State wholesale.
func (p *PPU) LoadState(s State) {
	p.mode = s.Mode
	p.line = s.Line
	p.cycles = s.Cycles
	p.vblankLine = s.VBlankLine
	p.windowLine = s.WindowLine
	p.rendered = s.Rendered
	copy(p.fb.buffer, s.FrameBuffer[:])
	if len(s.BGColorID) == len(p.bgColorID) {
		copy(p.bgColorID, s.BGColorID)
	}
}
