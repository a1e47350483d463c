package disasm

import "testing"

type fakeBus struct {
	mem [0x10000]byte
}

func (b *fakeBus) Read(address uint16) byte { return b.mem[address] }

func TestDisassembleAt_SimpleOneByteOpcode(t *testing.T) {
	bus := &fakeBus{}
	bus.mem[0x100] = 0x00 // NOP

	line := DisassembleAt(0x100, bus)
	if line.Instruction != "NOP" {
		t.Errorf("Instruction = %q; want NOP", line.Instruction)
	}
	if line.Length != 1 {
		t.Errorf("Length = %d; want 1", line.Length)
	}
}

func TestDisassembleAt_TwoByteImmediate(t *testing.T) {
	bus := &fakeBus{}
	bus.mem[0x100] = 0x3E // LD A,n
	bus.mem[0x101] = 0x42

	line := DisassembleAt(0x100, bus)
	want := "LD A,0x42"
	if line.Instruction != want {
		t.Errorf("Instruction = %q; want %q", line.Instruction, want)
	}
	if line.Length != 2 {
		t.Errorf("Length = %d; want 2", line.Length)
	}
}

func TestDisassembleAt_ThreeByteImmediate(t *testing.T) {
	bus := &fakeBus{}
	bus.mem[0x100] = 0xC3 // JP nn
	bus.mem[0x101] = 0x34
	bus.mem[0x102] = 0x12

	line := DisassembleAt(0x100, bus)
	want := "JP 0x1234"
	if line.Instruction != want {
		t.Errorf("Instruction = %q; want %q", line.Instruction, want)
	}
	if line.Length != 3 {
		t.Errorf("Length = %d; want 3", line.Length)
	}
}

func TestDisassembleAt_RegisterToRegisterLoad(t *testing.T) {
	bus := &fakeBus{}
	bus.mem[0x100] = 0x78 // LD A,B

	line := DisassembleAt(0x100, bus)
	if line.Instruction != "LD A,B" {
		t.Errorf("Instruction = %q; want LD A,B", line.Instruction)
	}
}

func TestDisassembleAt_Halt(t *testing.T) {
	bus := &fakeBus{}
	bus.mem[0x100] = 0x76 // HALT, not LD (HL),(HL)

	line := DisassembleAt(0x100, bus)
	if line.Instruction != "HALT" {
		t.Errorf("Instruction = %q; want HALT", line.Instruction)
	}
}

func TestDisassembleAt_CBPrefixedBit(t *testing.T) {
	bus := &fakeBus{}
	bus.mem[0x100] = 0xCB
	bus.mem[0x101] = 0x7C // BIT 7,H

	line := DisassembleAt(0x100, bus)
	want := "BIT 7,H"
	if line.Instruction != want {
		t.Errorf("Instruction = %q; want %q", line.Instruction, want)
	}
	if line.Length != 2 {
		t.Errorf("Length = %d; want 2", line.Length)
	}
}

func TestDisassembleRange_AdvancesPastEachInstructionLength(t *testing.T) {
	bus := &fakeBus{}
	bus.mem[0x100] = 0x00 // NOP, 1 byte
	bus.mem[0x101] = 0x3E // LD A,n, 2 bytes
	bus.mem[0x102] = 0x01
	bus.mem[0x103] = 0xC3 // JP nn, 3 bytes
	bus.mem[0x104] = 0x00
	bus.mem[0x105] = 0x01

	lines := DisassembleRange(0x100, 3, bus)
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d; want 3", len(lines))
	}
	if lines[0].Address != 0x100 || lines[1].Address != 0x101 || lines[2].Address != 0x103 {
		t.Errorf("addresses = %#04x, %#04x, %#04x; want 0x100, 0x101, 0x103",
			lines[0].Address, lines[1].Address, lines[2].Address)
	}
}

func TestFormatDisassemblyLine_MarksCurrentPC(t *testing.T) {
	line := DisassemblyLine{Address: 0x100, Instruction: "NOP", Length: 1}

	current := FormatDisassemblyLine(line, true)
	other := FormatDisassemblyLine(line, false)

	if current == other {
		t.Errorf("current-PC and non-current formatting should differ")
	}
}
