// Package cpu implements the DMG's Sharp LR35902 core: the register file,
// the full primary and CB-prefixed instruction sets, and interrupt
// dispatch (spec §4.1/§4.7).
package cpu

import "github.com/vkeeler/dmgcore/internal/addr"

// Bus is the memory interface the CPU executes against.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
}

// Flag is one of the four bits used in the flag register (high nibble of F).
type Flag = uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// CPU is the Sharp LR35902 register file and execution engine.
type CPU struct {
	bus Bus

	a, f byte
	b, c byte
	d, e byte
	h, l byte
	sp   uint16
	pc   uint16

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool

	currentOpcode uint16
	cycles        uint64
}

// New constructs a CPU with its registers zeroed, PC at the boot ROM entry
// point (0x0000).
func New(bus Bus) *CPU {
	return &CPU{bus: bus}
}

// SeedPostBoot sets the register file to the values a DMG has immediately
// after the boot ROM hands off to cartridge code, for the "skip-boot" entry
// path (spec §3 Lifecycle).
func (c *CPU) SeedPostBoot() {
	c.setAF(0x01B0)
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.sp = 0xFFFE
	c.pc = 0x0100
	c.interruptsEnabled = false
}

func (c *CPU) PC() uint16 { return c.pc }
func (c *CPU) SP() uint16 { return c.sp }
func (c *CPU) Cycles() uint64 { return c.cycles }
func (c *CPU) Halted() bool { return c.halted }

// Step executes one instruction, or services one pending interrupt, or (while
// halted with nothing pending) burns a single 4-cycle tick, per the dispatch
// order in spec §4.1, and returns the number of T-cycles it took.
func (c *CPU) Step() int {
	if c.serviceInterrupt() {
		c.cycles += 20
		return 20
	}

	if c.halted {
		if c.wakeFromHalt() && !c.interruptsEnabled {
			c.haltBug = true
		}
		c.cycles += 4
		return 4
	}

	if c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	opcode := c.fetch()
	cycles := c.execute(opcode)
	c.cycles += uint64(cycles)
	return cycles
}

// fetch reads the opcode at PC, advancing PC past it (and past the 0xCB
// prefix byte, folding the prefix into the high byte of currentOpcode so
// callers/tests can distinguish CB instructions at a glance).
func (c *CPU) fetch() uint16 {
	op := c.readImmediate()
	if op != 0xCB {
		c.currentOpcode = uint16(op)
		return uint16(op)
	}

	cb := c.readImmediate()
	c.currentOpcode = 0xCB00 | uint16(cb)
	return c.currentOpcode
}

func (c *CPU) readImmediate() byte {
	if c.haltBug {
		// The HALT bug fails to advance PC past the first byte fetched
		// after HALT with IME=0 and a pending interrupt, causing that
		// byte to be decoded twice.
		c.haltBug = false
		return c.bus.Read(c.pc)
	}
	v := c.bus.Read(c.pc)
	c.pc++
	return v
}

func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return uint16(high)<<8 | uint16(low)
}

// pendingInterrupt reports the IE&IF&0x1F mask, live off the bus each call.
func (c *CPU) pendingInterrupt() uint8 {
	ie := c.bus.Read(addr.IE)
	iflags := c.bus.Read(addr.IF)
	return ie & iflags & 0x1F
}

// serviceInterrupt dispatches the highest-priority pending interrupt (spec
// §4.7's fixed priority by ascending bit number) when IME is set: it clears
// IME and the serviced IF bit, pushes PC, and jumps to the vector. Reports
// whether it serviced one; the caller is responsible for the fixed 20-cycle
// cost, since nothing else executes in the same Step call when it does.
func (c *CPU) serviceInterrupt() bool {
	if !c.interruptsEnabled {
		return false
	}

	pending := c.pendingInterrupt()
	if pending == 0 {
		return false
	}

	var bit uint8
	for bit = 0; bit < 5; bit++ {
		if pending&(1<<bit) != 0 {
			break
		}
	}

	c.interruptsEnabled = false
	iflags := c.bus.Read(addr.IF)
	c.bus.Write(addr.IF, iflags&^(1<<bit))
	c.pushStack(c.pc)
	c.pc = addr.Vector(bit)

	return true
}

// wakeFromHalt reports whether a pending (not necessarily enabled) interrupt
// should pop the CPU out of HALT, per spec §4.1 step (2): HALT ends as soon
// as IE&IF is nonzero, regardless of IME.
func (c *CPU) wakeFromHalt() bool {
	if c.pendingInterrupt() == 0 {
		return false
	}
	c.halted = false
	return true
}

// State is the CPU's gob-serializable snapshot (spec §6 Snapshot):
// every field that affects execution, in a stable, explicit layout
// independent of the live CPU struct's internal field order.
type State struct {
	A, F                       byte
	B, C                       byte
	D, E                       byte
	H, L                       byte
	SP, PC                     uint16
	InterruptsEnabled          bool
	EIPending                  bool
	Halted                     bool
	HaltBug                    bool
	Cycles                     uint64
}

// SaveState captures the CPU's current register file and control flags.
func (c *CPU) SaveState() State {
	return State{
		A: c.a, F: c.f, B: c.b, C: c.c, D: c.d, E: c.e, H: c.h, L: c.l,
		SP: c.sp, PC: c.pc,
		InterruptsEnabled: c.interruptsEnabled,
		EIPending:         c.eiPending,
		Halted:            c.halted,
		HaltBug:           c.haltBug,
		Cycles:            c.cycles,
	}
}

// LoadState restores a previously captured State wholesale.
func (c *CPU) LoadState(s State) {
	c.a, c.f, c.b, c.c, c.d, c.e, c.h, c.l = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.sp, c.pc = s.SP, s.PC
	c.interruptsEnabled = s.InterruptsEnabled
	c.eiPending = s.EIPending
	c.halted = s.Halted
	c.haltBug = s.HaltBug
	c.cycles = s.Cycles
}
