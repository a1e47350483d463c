// Package core composes the bus, CPU, PPU and MBC-backed cartridge into
// the single step loop a host drives: it owns all emulator state and
// exposes Load/Step/ReadROMName plus whole-machine snapshotting.
package core

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vkeeler/dmgcore/internal/audio"
	"github.com/vkeeler/dmgcore/internal/cpu"
	"github.com/vkeeler/dmgcore/internal/memory"
	"github.com/vkeeler/dmgcore/internal/video"
)

// Core is the root emulator object: CPU + bus + PPU wired together, plus
// whatever bookkeeping (ROM/save paths) the host's load path needs.
type Core struct {
	cpu *cpu.CPU
	ppu *video.PPU
	mmu *memory.MMU

	cart     *memory.Cartridge
	savePath string
}

// Load builds a Core that boots through a real 256-byte boot ROM image
// before handing off to cartridge code, per spec §3's Lifecycle.
func Load(bootROMPath, gameROMPath string) (*Core, error) {
	bootROM, err := os.ReadFile(bootROMPath)
	if err != nil {
		return nil, fmt.Errorf("core: reading boot ROM: %w", err)
	}
	if len(bootROM) != 256 {
		return nil, fmt.Errorf("core: boot ROM must be exactly 256 bytes, got %d", len(bootROM))
	}

	c, err := newCore(gameROMPath)
	if err != nil {
		return nil, err
	}
	c.mmu.SetBootROM(bootROM)
	return c, nil
}

// LoadWithoutBootROM builds a Core on the "skip-boot" entry path: the
// register file and hardware registers are seeded directly to their
// post-boot values instead of executing the boot ROM.
func LoadWithoutBootROM(gameROMPath string) (*Core, error) {
	c, err := newCore(gameROMPath)
	if err != nil {
		return nil, err
	}
	c.cpu.SeedPostBoot()
	c.mmu.SeedPostBoot()
	return c, nil
}

func newCore(gameROMPath string) (*Core, error) {
	var cart *memory.Cartridge
	var savePath string

	if gameROMPath == "" {
		cart = memory.NewCartridge()
	} else {
		data, err := os.ReadFile(gameROMPath)
		if err != nil {
			return nil, fmt.Errorf("core: reading cartridge: %w", err)
		}
		cart, err = memory.NewCartridgeFromData(data)
		if err != nil {
			return nil, fmt.Errorf("core: parsing cartridge header: %w", err)
		}
		slog.Info("core: loaded cartridge", "title", cart.Title, "type", cart.Type, "rom_banks", cart.ROMBanks, "ram_banks", cart.RAMBanks, "battery", cart.HasBattery)
		if cart.HasBattery {
			savePath = batterySavePath(gameROMPath)
		}
	}

	mmu := memory.NewWithCartridge(cart)
	c := &Core{
		mmu:      mmu,
		cpu:      cpu.New(mmu),
		ppu:      video.New(mmu),
		cart:     cart,
		savePath: savePath,
	}

	if savePath != "" {
		c.loadBatteryRAM()
	}

	return c, nil
}

// batterySavePath derives the sibling .sav path a battery-backed
// cartridge's RAM persists to: the ROM path with its extension swapped.
func batterySavePath(romPath string) string {
	ext := filepath.Ext(romPath)
	return strings.TrimSuffix(romPath, ext) + ".sav"
}

func (c *Core) loadBatteryRAM() {
	data, err := os.ReadFile(c.savePath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("core: reading battery RAM", "path", c.savePath, "error", err)
		}
		return
	}
	ram := c.mmu.BatteryRAM()
	if ram == nil || len(data) != len(ram) {
		slog.Warn("core: battery RAM size mismatch, ignoring save file", "path", c.savePath, "want", len(ram), "got", len(data))
		return
	}
	copy(ram, data)
	slog.Info("core: loaded battery RAM", "path", c.savePath, "size", len(data))
}

// SaveBatteryRAM persists the cartridge's external RAM to its .sav path,
// a no-op if the cartridge has no battery.
func (c *Core) SaveBatteryRAM() error {
	if c.savePath == "" {
		return nil
	}
	ram := c.mmu.BatteryRAM()
	if ram == nil {
		return nil
	}
	if err := os.WriteFile(c.savePath, ram, 0o644); err != nil {
		return fmt.Errorf("core: writing battery RAM: %w", err)
	}
	slog.Info("core: wrote battery RAM", "path", c.savePath, "size", len(ram))
	return nil
}

// ReadROMName returns the cleaned cartridge title from header bytes
// 0x134-0x143 (spec §6).
func (c *Core) ReadROMName() string {
	if c.cart == nil {
		return ""
	}
	return c.cart.Title
}

// Step drives the emulator forward one frame: it latches the joypad
// mask, then runs CPU instructions (ticking the bus and PPU by each
// instruction's cycle count) until the PPU signals frame completion,
// writes the rendered frame into pixelBuf, drains buffered audio into
// sink, and reports whether a frame was actually produced. PPU.Tick
// never signals completion while the LCD is disabled (LCDC bit 7 = 0),
// so a ROM that turns the display off for a sustained stretch (bulk
// VRAM writes, or just HALTing with the LCD off) would otherwise spin
// here forever: once the budget of one frame's worth of T-cycles is
// spent with no frame produced, Step returns early with frameReady
// false so the host regains control every call. pixelBuf must be at
// least 160*144 elements.
func (c *Core) Step(pixelBuf []uint32, sink audio.Sink, joypadMask uint8) bool {
	c.mmu.SetJoypadMask(joypadMask)

	frameReady := false
	budget := 0
	for budget < video.FrameCycles {
		cycles := c.cpu.Step()
		c.mmu.Tick(cycles)
		budget += cycles
		if c.ppu.Tick(cycles) {
			frameReady = true
			break
		}
	}

	copy(pixelBuf, c.ppu.FrameBuffer().Slice())
	c.drainAudio(sink)

	return frameReady
}

func (c *Core) drainAudio(sink audio.Sink) {
	if sink == nil {
		return
	}
	samples := c.mmu.APU.DrainAll()
	for i := 0; i+1 < len(samples); i += 2 {
		sink.Push(audio.SampleToUnitFloat(samples[i]), audio.SampleToUnitFloat(samples[i+1]))
	}
}

// HandleKeyPress and HandleKeyRelease forward joypad edge events directly
// to the bus, for hosts that drive input key-by-key (e.g. a terminal
// backend) rather than by rebuilding a full mask every step.
func (c *Core) HandleKeyPress(key memory.JoypadKey)   { c.mmu.HandleKeyPress(key) }
func (c *Core) HandleKeyRelease(key memory.JoypadKey) { c.mmu.HandleKeyRelease(key) }

// FrameBuffer exposes the PPU's live frame buffer directly, for hosts
// that want to read pixels without going through Step's pixelBuf copy
// (e.g. to write a PNG screenshot between steps).
func (c *Core) FrameBuffer() *video.FrameBuffer { return c.ppu.FrameBuffer() }

// AudioProvider exposes the APU's pull-based sample source for hosts
// wired to a callback-driven audio device rather than a push Sink.
func (c *Core) AudioProvider() audio.Provider { return c.mmu.APU }

// Bus exposes the memory bus directly, for hosts that want to read
// bytes without stepping the machine (e.g. a disassembler view).
func (c *Core) Bus() *memory.MMU { return c.mmu }

// PC returns the CPU's current program counter, for a disassembler
// view that wants to mark the current instruction.
func (c *Core) PC() uint16 { return c.cpu.PC() }
