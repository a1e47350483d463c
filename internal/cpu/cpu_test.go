package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vkeeler/dmgcore/internal/addr"
)

// fakeBus is a flat 64KiB memory for CPU unit tests, independent of the
// real MMU's region dispatch.
type fakeBus struct {
	mem [0x10000]byte
}

func (b *fakeBus) Read(address uint16) byte         { return b.mem[address] }
func (b *fakeBus) Write(address uint16, value byte) { b.mem[address] = value }

func TestCPU_stack(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)

	c.sp = 0xFFFF
	c.pushStack(0x0102)

	assert.Equal(t, uint16(0xFFFD), c.sp)

	popped := c.popStack()

	assert.Equal(t, uint16(0x0102), popped)
	assert.Equal(t, uint16(0xFFFF), c.sp)
}

func TestCPU_inc(t *testing.T) {
	c := New(&fakeBus{})

	testCases := []struct {
		desc  string
		reg   *uint8
		arg   uint8
		want  uint8
		flags Flag
	}{
		{desc: "increases", reg: &c.a, arg: 0x0A, want: 0x0B},
		{desc: "sets zero flag", reg: &c.a, arg: 0xFF, want: 0, flags: zeroFlag | halfCarryFlag},
		{desc: "sets half carry flag", reg: &c.a, arg: 0x0F, want: 0x10, flags: halfCarryFlag},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c.f = 0
			*tC.reg = tC.arg
			c.inc(tC.reg)
			assert.Equal(t, tC.want, *tC.reg)
			assert.Equal(t, tC.flags, c.f)
		})
	}
}

func TestCPU_dec(t *testing.T) {
	c := New(&fakeBus{})

	testCases := []struct {
		desc  string
		reg   *uint8
		arg   uint8
		want  uint8
		flags Flag
	}{
		{desc: "decreases", reg: &c.b, arg: 0x0B, want: 0x0A, flags: subFlag},
		{desc: "sets zero flag", reg: &c.b, arg: 0x01, want: 0, flags: subFlag | zeroFlag},
		{desc: "sets half carry flag", reg: &c.b, arg: 0x00, want: 0xFF, flags: subFlag | halfCarryFlag},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c.f = 0
			*tC.reg = tC.arg
			c.dec(tC.reg)
			assert.Equal(t, tC.want, *tC.reg)
			assert.Equal(t, tC.flags, c.f)
		})
	}
}

func TestCPU_addToA(t *testing.T) {
	c := New(&fakeBus{})

	testCases := []struct {
		desc  string
		a     uint8
		arg   uint8
		want  uint8
		flags Flag
	}{
		{desc: "adds to register A", a: 0, arg: 0x0F, want: 0x0F},
		{desc: "sets half carry", a: 0x0F, arg: 0x0F, want: 0x1E, flags: halfCarryFlag},
		{desc: "sets carry", a: 0xFF, arg: 0x02, want: 1, flags: carryFlag | halfCarryFlag},
		{desc: "sets zero", a: 0xFF, arg: 0x01, want: 0, flags: zeroFlag | carryFlag | halfCarryFlag},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c.f = 0
			c.a = tC.a
			c.addToA(tC.arg)
			assert.Equal(t, tC.want, c.a)
			assert.Equal(t, tC.flags, c.f)
		})
	}
}

func TestCPU_sub(t *testing.T) {
	c := New(&fakeBus{})

	testCases := []struct {
		desc  string
		a     uint8
		arg   uint8
		want  uint8
		flags Flag
	}{
		{desc: "subtracts from A", a: 0x3, arg: 0x01, want: 0x02, flags: subFlag},
		{desc: "sets carry", a: 0, arg: 0x01, want: 0xFF, flags: subFlag | carryFlag | halfCarryFlag},
		{desc: "sets halfcarry", a: 0x10, arg: 0x01, want: 0x0F, flags: subFlag | halfCarryFlag},
		{desc: "sets zero", a: 0x1, arg: 0x01, want: 0, flags: subFlag | zeroFlag},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c.f = 0
			c.a = tC.a
			c.sub(tC.arg)
			assert.Equal(t, tC.want, c.a)
			assert.Equal(t, tC.flags, c.f)
		})
	}
}

func TestCPU_daa(t *testing.T) {
	c := New(&fakeBus{})

	testCases := []struct {
		desc         string
		initialFlags Flag
		a            uint8
		want         uint8
		flags        Flag
	}{
		{desc: "sets zero flag", a: 0, want: 0, flags: zeroFlag},
		{desc: "(add) adds 0x06", a: 0x7d, want: 0x83},
		{desc: "(add) adds 0x60", a: 0xa1, want: 0x01, flags: carryFlag},
		{desc: "(add) adds 0x66", a: 0xaa, want: 0x10, flags: carryFlag},
		{desc: "(sub+half) removes 0x06", initialFlags: subFlag | halfCarryFlag, a: 0x83, want: 0x7d, flags: subFlag},
		{desc: "(sub+carry) removes 0x60", initialFlags: subFlag | carryFlag, a: 0xa1, want: 0x41, flags: subFlag | carryFlag},
		{desc: "(sub+carry+half) removes 0x66", initialFlags: subFlag | carryFlag | halfCarryFlag, a: 0x10, want: 0xaa, flags: subFlag | carryFlag},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c.f = tC.initialFlags
			c.a = tC.a
			c.daa()
			assert.Equal(t, tC.want, c.a)
			assert.Equal(t, tC.flags, c.f)
		})
	}
}

func TestCPU_bitSetRes(t *testing.T) {
	c := New(&fakeBus{})

	c.f = 0
	c.bit(0, 0xF0)
	assert.Equal(t, zeroFlag|halfCarryFlag, c.f)

	c.f = zeroFlag
	c.bit(7, 0x80)
	assert.Equal(t, halfCarryFlag, c.f)

	v := uint8(0xf0)
	c.set(0, &v)
	assert.Equal(t, uint8(0xf1), v)

	c.res(0, &v)
	assert.Equal(t, uint8(0xf0), v)
}

func TestCPU_jr(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)

	testCases := []struct {
		desc string
		n    uint8
		pc   uint16
		want uint16
	}{
		{desc: "jumps back", n: 0xFE, pc: 0xC000, want: 0xC000 - 2 + 1},
		{desc: "jumps back 16", n: 0xF0, pc: 0xC000, want: 0xC000 - 16 + 1},
		{desc: "jumps forward", n: 0x10, pc: 0xC000, want: 0xC000 + 16 + 1},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c.pc = tC.pc
			bus.Write(c.pc, tC.n)
			c.jr()
			assert.Equal(t, tC.want, c.pc)
		})
	}
}

// TestCPU_interruptDispatch covers spec §8's scenario 4: with IME set and
// every interrupt pending, a single Step services only the
// lowest-numbered bit (VBLANK), clears just that IF bit, pushes the old
// PC, jumps to its vector, and does not also execute whatever instruction
// sits at that vector in the same Step call.
func TestCPU_interruptDispatch(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)
	c.interruptsEnabled = true
	c.pc = 0xC000
	c.sp = 0xFFFE
	bus.Write(addr.IE, 0x1F)
	bus.Write(addr.IF, 0x1F)
	// Opcode at the vector target: if Step wrongly executed an
	// instruction too, this INC B would bump c.b past 0.
	bus.Write(addr.VBlankVector, 0x04)

	cycles := c.Step()

	assert.Equal(t, 20, cycles)
	assert.Equal(t, addr.VBlankVector, c.pc)
	assert.False(t, c.interruptsEnabled)
	assert.Equal(t, uint8(0x1E), bus.Read(addr.IF), "only the VBLANK bit is cleared")
	assert.Equal(t, uint8(0), c.b, "the vector's instruction must not run in the same Step")

	poppedPC := c.popStack()
	assert.Equal(t, uint16(0xC000), poppedPC)
}

// TestCPU_haltWakeDoesNotRunInstruction covers spec §4.1 step (2): waking
// from HALT on a pending-but-undispatched interrupt costs 4 cycles and
// defers the next instruction fetch to the following Step call.
func TestCPU_haltWakeDoesNotRunInstruction(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)
	c.interruptsEnabled = false
	c.halted = true
	c.pc = 0xC000
	bus.Write(addr.IE, 0x01)
	bus.Write(addr.IF, 0x01)
	bus.Write(c.pc, 0x04) // INC B, must not run yet

	cycles := c.Step()

	assert.Equal(t, 4, cycles)
	assert.False(t, c.halted)
	assert.Equal(t, uint16(0xC000), c.pc, "PC must not advance past the pending opcode yet")
	assert.Equal(t, uint8(0), c.b)
}

// TestCPU_haltStaysHaltedWithNothingPending burns a single 4-cycle tick
// per Step while HALTED with no pending interrupt.
func TestCPU_haltStaysHaltedWithNothingPending(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)
	c.halted = true

	cycles := c.Step()

	assert.Equal(t, 4, cycles)
	assert.True(t, c.halted)
}
