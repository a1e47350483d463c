// Package memory implements the DMG's 64KiB address space: region
// decoding, the MBC-backed cartridge window, work/video RAM, OAM, the
// joypad latch, the divider/timer, and the APU register window. It ticks
// the sub-components that need a cycle clock (timer, serial, APU).
package memory

import (
	"fmt"
	"log/slog"

	"github.com/vkeeler/dmgcore/internal/addr"
	"github.com/vkeeler/dmgcore/internal/audio"
	"github.com/vkeeler/dmgcore/internal/bit"
	"github.com/vkeeler/dmgcore/internal/serial"
)

type region uint8

const (
	regionROM region = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// JoypadKey identifies one of the eight DMG input lines.
type JoypadKey uint8

const (
	KeyRight JoypadKey = iota
	KeyLeft
	KeyUp
	KeyDown
	KeyA
	KeyB
	KeySelect
	KeyStart
)

// MMU is the memory bus: it owns VRAM/WRAM/OAM/HRAM storage and routes
// reads and writes to the MBC, timer, serial port, joypad latch and APU.
type MMU struct {
	mbc MBC
	APU *audio.APU

	ram       []byte // flat backing store for VRAM/WRAM/OAM/unused/IO/HRAM
	regionMap [256]region

	bootROM      []byte
	bootDisabled bool

	joyButtons uint8
	joyDpad    uint8
	joySelect  uint8 // raw P1 selection bits as last written

	serial serial.Port
	timer  timer
}

// New builds an MMU with no cartridge inserted: equivalent to a DMG with
// an empty cartridge slot.
func New() *MMU {
	return NewWithCartridge(nil)
}

// NewWithCartridge builds an MMU around cart (nil means no cartridge).
func NewWithCartridge(cart *Cartridge) *MMU {
	m := &MMU{
		ram:        make([]byte, 0x10000),
		APU:        audio.New(),
		joyButtons: 0x0F,
		joyDpad:    0x0F,
	}
	m.serial = serial.NewLogSink(func() { m.RequestInterrupt(addr.SerialInterrupt) })
	m.timer.onOverflow = func() { m.RequestInterrupt(addr.TimerInterrupt) }
	m.initRegionMap()

	if cart != nil {
		switch cart.Type {
		case NoMBCType:
			m.mbc = NewNoMBC(cart.Data)
		case MBC1Type, MBC1RAMType, MBC1RAMBatteryType:
			m.mbc = NewMBC1(cart.Data, cart.RAMBanks)
		default:
			panic(fmt.Sprintf("memory: unsupported MBC type %d", cart.Type))
		}
	}

	return m
}

// SetBootROM installs a 256-byte boot ROM image that shadows reads below
// 0x0100 until a write of 0x01 to FF50 latches it off permanently.
func (m *MMU) SetBootROM(image []byte) {
	m.bootROM = image
	m.bootDisabled = image == nil
}

// SeedPostBoot writes the hardware register values a DMG has immediately
// after the boot ROM hands off to cartridge code at PC=0x0100, for the
// skip-boot entry path (spec §3 Lifecycle).
func (m *MMU) SeedPostBoot() {
	m.bootDisabled = true
	m.Write(addr.LCDC, 0x91)
	m.Write(addr.BGP, 0xFC)
	m.Write(addr.STAT, 0x85)
	m.Write(addr.NR52, 0xF1)
	m.Write(addr.NR10, 0x80)
	m.Write(addr.NR11, 0xBF)
	m.Write(addr.NR12, 0xF3)
	m.Write(addr.NR14, 0xBF)
	m.Write(addr.NR21, 0x3F)
	m.Write(addr.NR24, 0xBF)
	m.Write(addr.NR30, 0x7F)
	m.Write(addr.NR31, 0xFF)
	m.Write(addr.NR32, 0x9F)
	m.Write(addr.NR34, 0xBF)
	m.Write(addr.NR41, 0xFF)
	m.Write(addr.NR44, 0xBF)
	m.Write(addr.NR50, 0x77)
	m.Write(addr.NR51, 0xF3)
	m.timer.Reset(0xABCC)
}

func (m *MMU) initRegionMap() {
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	m.regionMap[0xFE] = regionOAM
	m.regionMap[0xFF] = regionIO
}

// Tick advances the timer, serial port and APU by cycles T-cycles. The
// PPU is ticked separately by the core, which owns it directly.
func (m *MMU) Tick(cycles int) {
	m.timer.Tick(cycles)
	m.serial.Tick(cycles)
	m.APU.Tick(cycles)
}

// RequestInterrupt sets the named interrupt's bit in IF.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	flags := m.ram[addr.IF]
	m.ram[addr.IF] = flags | byte(interrupt)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) Read(address uint16) byte {
	if address < 0x100 && !m.bootDisabled && m.bootROM != nil {
		return m.bootROM[address]
	}

	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			m.logUnmapped("read", address)
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM, regionWRAM:
		return m.ram[address]
	case regionEcho:
		return m.ram[address-0x2000]
	case regionOAM:
		if address > addr.OAMEnd {
			return 0xFF // FEA0-FEFF unusable
		}
		return m.ram[address]
	case regionIO:
		return m.readIO(address)
	default:
		return 0xFF
	}
}

func (m *MMU) readIO(address uint16) byte {
	switch {
	case address == addr.SB || address == addr.SC:
		return m.serial.Read(address)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		return m.timer.Read(address)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		return m.APU.ReadRegister(address)
	case address == addr.P1:
		return m.joypadRegister()
	case address == addr.IF:
		return m.ram[address] | 0xE0 // upper 3 bits always read 1
	case address == addr.BootROMDisable:
		if m.bootDisabled {
			return 0xFF
		}
		return 0x00
	case address == addr.LY:
		// LY reads as 0 while the LCD is off (spec §3, §4.3); the PPU's
		// internal line counter is frozen but not observable on the bus.
		if !bit.IsSet(7, m.ram[addr.LCDC]) {
			return 0
		}
		return m.ram[address]
	case address == addr.STAT:
		// The mode bits (1:0) report HBLANK while the LCD is off; the
		// interrupt-enable and LYC-coincidence bits still read through.
		if !bit.IsSet(7, m.ram[addr.LCDC]) {
			return m.ram[address] &^ 0x03
		}
		return m.ram[address]
	default:
		return m.ram[address]
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			m.logUnmapped("write", address)
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM, regionWRAM:
		m.ram[address] = value
	case regionEcho:
		m.ram[address-0x2000] = value
	case regionOAM:
		if address <= addr.OAMEnd {
			m.ram[address] = value
		}
		// FEA0-FEFF writes are silently discarded
	case regionIO:
		m.writeIO(address, value)
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch {
	case address == addr.P1:
		m.joySelect = value & 0x30
	case address == addr.SB || address == addr.SC:
		m.serial.Write(address, value)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		m.timer.Write(address, value)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		m.APU.WriteRegister(address, value)
	case address == addr.IF:
		m.ram[address] = value | 0xE0
	case address == addr.DMA:
		m.oamDMA(value)
	case address == addr.BootROMDisable:
		if value&0x01 != 0 {
			m.bootDisabled = true
		}
	default:
		m.ram[address] = value
	}
}

// oamDMA models the FF46 OAM-DMA trigger: copying 160 bytes from
// (n<<8)+i into OAM, instantaneous at the bus level (spec §4.2).
func (m *MMU) oamDMA(n byte) {
	source := uint16(n) << 8
	for i := uint16(0); i < 0xA0; i++ {
		m.ram[addr.OAMStart+i] = m.Read(source + i)
	}
}

// joypadRegister computes P1's readable value from the current
// selection bits and button/dpad state (spec §4.6).
func (m *MMU) joypadRegister() byte {
	result := uint8(0xC0) | m.joySelect

	selectDpad := !bit.IsSet(4, m.joySelect)
	selectButtons := !bit.IsSet(5, m.joySelect)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joyButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joyDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joyButtons & m.joyDpad & 0x0F
	default:
		result |= 0x0F
	}
	return result
}

// HandleKeyPress marks key as pressed (active low), raising the JOYPAD
// interrupt on a high-to-low transition.
func (m *MMU) HandleKeyPress(key JoypadKey) {
	before := m.joyButtons&m.joyDpad
	m.setKey(key, false)
	after := m.joyButtons & m.joyDpad
	if before&^after != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}
}

// HandleKeyRelease marks key as released.
func (m *MMU) HandleKeyRelease(key JoypadKey) {
	m.setKey(key, true)
}

func (m *MMU) setKey(key JoypadKey, up bool) {
	var group *uint8
	var bitIndex uint8
	switch key {
	case KeyRight:
		group, bitIndex = &m.joyDpad, 0
	case KeyLeft:
		group, bitIndex = &m.joyDpad, 1
	case KeyUp:
		group, bitIndex = &m.joyDpad, 2
	case KeyDown:
		group, bitIndex = &m.joyDpad, 3
	case KeyA:
		group, bitIndex = &m.joyButtons, 0
	case KeyB:
		group, bitIndex = &m.joyButtons, 1
	case KeySelect:
		group, bitIndex = &m.joyButtons, 2
	case KeyStart:
		group, bitIndex = &m.joyButtons, 3
	}
	*group = bit.SetTo(bitIndex, *group, up)
}

// SetJoypadMask applies the spec's 8-bit joypad mask in one shot: a set
// bit means the corresponding button is held down.
//
// Mapping: DOWN=1, LEFT=2, UP=4, RIGHT=8, START=16, SELECT=32, A=64, B=128.
func (m *MMU) SetJoypadMask(mask uint8) {
	keys := []struct {
		bitIndex uint8
		key      JoypadKey
	}{
		{0, KeyDown}, {1, KeyLeft}, {2, KeyUp}, {3, KeyRight},
		{4, KeyStart}, {5, KeySelect}, {6, KeyA}, {7, KeyB},
	}
	for _, k := range keys {
		if bit.IsSet(k.bitIndex, mask) {
			m.HandleKeyPress(k.key)
		} else {
			m.HandleKeyRelease(k.key)
		}
	}
}

// BatteryRAM returns the cartridge's external RAM for battery persistence,
// or nil if the current MBC has none.
func (m *MMU) BatteryRAM() []byte {
	if m.mbc == nil {
		return nil
	}
	return m.mbc.RAM()
}

func (m *MMU) logUnmapped(kind string, address uint16) {
	slog.Debug("memory: access with no cartridge installed", "kind", kind, "addr", fmt.Sprintf("0x%04X", address))
}

// State is the memory bus's gob-serializable snapshot (spec §6
// Snapshot): the flat 64KiB backing store (VRAM/WRAM/OAM/IO/HRAM),
// the boot-ROM latch, joypad latch state, the MBC's banking registers
// and RAM, the timer, and the serial port. Boot ROM bytes themselves
// are excluded per spec §6 (the host re-supplies them via SetBootROM
// before restoring).
type State struct {
	RAM          [0x10000]byte
	BootDisabled bool
	JoyButtons   uint8
	JoyDpad      uint8
	JoySelect    uint8
	MBC          MBCState
	Timer        timerState
	Serial       serial.State
}

// SaveState captures the bus's full address space plus every
// sub-component's mutable state.
func (m *MMU) SaveState() State {
	s := State{
		BootDisabled: m.bootDisabled,
		JoyButtons:   m.joyButtons,
		JoyDpad:      m.joyDpad,
		JoySelect:    m.joySelect,
		Timer:        m.timer.saveState(),
	}
	copy(s.RAM[:], m.ram)
	if m.mbc != nil {
		s.MBC = m.mbc.SaveState()
	}
	if sink, ok := m.serial.(*serial.LogSink); ok {
		s.Serial = sink.SaveState()
	}
	return s
}

// LoadState restores a previously captured State wholesale. The
// cartridge (and thus the MBC/ROM sizing) must already be loaded, the
// same way it was when SaveState was called.
func (m *MMU) LoadState(s State) {
	copy(m.ram, s.RAM[:])
	m.bootDisabled = s.BootDisabled
	m.joyButtons = s.JoyButtons
	m.joyDpad = s.JoyDpad
	m.joySelect = s.JoySelect
	m.timer.loadState(s.Timer)
	if m.mbc != nil {
		m.mbc.LoadState(s.MBC)
	}
	if sink, ok := m.serial.(*serial.LogSink); ok {
		sink.LoadState(s.Serial)
	}
}
