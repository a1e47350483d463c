package cpu

import "fmt"

// execute decodes and runs the instruction identified by currentOpcode
// (already fetched by Step), returning its T-cycle cost. Primary opcodes
// are decomposed into x/y/z/p/q fields the way the Sharp LR35902's
// instruction encoding is structured, grouping the ~10 regular families
// (8-bit loads, ALU ops, INC/DEC, stack ops, jumps) instead of one
// hand-written function per opcode.
func (c *CPU) execute(opcode uint16) int {
	if opcode&0xCB00 != 0 {
		return c.executeCB(uint8(opcode))
	}

	op := uint8(opcode)
	x := op >> 6
	y := (op >> 3) & 7
	z := op & 7
	p := y >> 1
	q := y & 1

	switch x {
	case 0:
		return c.executeBlockZero(z, y, p, q)
	case 1:
		if z == 6 && y == 6 {
			c.halted = true
			return 4
		}
		c.setReg8(y, c.reg8(z))
		if z == 6 || y == 6 {
			return 8
		}
		return 4
	case 2:
		value := c.reg8(z)
		c.aluOp(y, value)
		if z == 6 {
			return 8
		}
		return 4
	case 3:
		return c.executeBlockThree(z, y, p, q)
	}

	panic(fmt.Sprintf("unreachable opcode decode 0x%02X", op))
}

func (c *CPU) executeBlockZero(z, y, p, q uint8) int {
	switch z {
	case 0:
		switch {
		case y == 0: // NOP
			return 4
		case y == 1: // LD (nn),SP
			addr := c.readImmediateWord()
			c.bus.Write(addr, uint8(c.sp))
			c.bus.Write(addr+1, uint8(c.sp>>8))
			return 20
		case y == 2: // STOP
			c.readImmediate()
			return 4
		case y == 3: // JR d
			c.jr()
			return 12
		default: // JR cc,d
			if c.condition(y - 4) {
				c.jr()
				return 12
			}
			c.readImmediate()
			return 8
		}
	case 1:
		if q == 0 { // LD rp[p],nn
			c.setRP(p, c.readImmediateWord())
			return 12
		}
		c.addToHL(c.getRP(p)) // ADD HL,rp[p]
		return 8
	case 2:
		addr := c.indirectAddr(p)
		if q == 0 {
			c.bus.Write(addr, c.a)
		} else {
			c.a = c.bus.Read(addr)
		}
		return 8
	case 3:
		if q == 0 {
			c.setRP(p, c.getRP(p)+1)
		} else {
			c.setRP(p, c.getRP(p)-1)
		}
		return 8
	case 4:
		c.incReg(y)
		if y == 6 {
			return 12
		}
		return 4
	case 5:
		c.decReg(y)
		if y == 6 {
			return 12
		}
		return 4
	case 6:
		c.setReg8(y, c.readImmediate())
		if y == 6 {
			return 12
		}
		return 8
	case 7:
		switch y {
		case 0:
			c.rlc(&c.a)
			c.resetFlag(zeroFlag)
		case 1:
			c.rrc(&c.a)
			c.resetFlag(zeroFlag)
		case 2:
			c.rl(&c.a)
			c.resetFlag(zeroFlag)
		case 3:
			c.rr(&c.a)
			c.resetFlag(zeroFlag)
		case 4:
			c.daa()
		case 5:
			c.cpl()
		case 6:
			c.scf()
		case 7:
			c.ccf()
		}
		return 4
	}
	panic("unreachable")
}

func (c *CPU) executeBlockThree(z, y, p, q uint8) int {
	switch z {
	case 0:
		switch {
		case y <= 3: // RET cc
			if c.condition(y) {
				c.pc = c.popStack()
				return 20
			}
			return 8
		case y == 4: // LD (0xFF00+n),A
			n := c.readImmediate()
			c.bus.Write(0xFF00+uint16(n), c.a)
			return 12
		case y == 5: // ADD SP,d
			c.sp = c.addToSP(int8(c.readImmediate()))
			return 16
		case y == 6: // LD A,(0xFF00+n)
			n := c.readImmediate()
			c.a = c.bus.Read(0xFF00 + uint16(n))
			return 12
		default: // LD HL,SP+d
			c.setHL(c.addToSP(int8(c.readImmediate())))
			return 12
		}
	case 1:
		if q == 0 { // POP rp2[p]
			c.setRP2(p, c.popStack())
			return 12
		}
		switch p {
		case 0: // RET
			c.pc = c.popStack()
			return 16
		case 1: // RETI
			c.pc = c.popStack()
			c.interruptsEnabled = true
			return 16
		case 2: // JP HL
			c.pc = c.getHL()
			return 4
		default: // LD SP,HL
			c.sp = c.getHL()
			return 8
		}
	case 2:
		switch {
		case y <= 3: // JP cc,nn
			addr := c.readImmediateWord()
			if c.condition(y) {
				c.pc = addr
				return 16
			}
			return 12
		case y == 4: // LD (0xFF00+C),A
			c.bus.Write(0xFF00+uint16(c.c), c.a)
			return 8
		case y == 5: // LD (nn),A
			c.bus.Write(c.readImmediateWord(), c.a)
			return 16
		case y == 6: // LD A,(0xFF00+C)
			c.a = c.bus.Read(0xFF00 + uint16(c.c))
			return 8
		default: // LD A,(nn)
			c.a = c.bus.Read(c.readImmediateWord())
			return 16
		}
	case 3:
		switch y {
		case 0: // JP nn
			c.pc = c.readImmediateWord()
			return 16
		case 6: // DI
			c.interruptsEnabled = false
			c.eiPending = false
			return 4
		case 7: // EI
			c.eiPending = true
			return 4
		default:
			panic(fmt.Sprintf("illegal opcode 0x%02X", (3<<6)|(y<<3)|z))
		}
	case 4:
		if y <= 3 { // CALL cc,nn
			addr := c.readImmediateWord()
			if c.condition(y) {
				c.pushStack(c.pc)
				c.pc = addr
				return 24
			}
			return 12
		}
		panic(fmt.Sprintf("illegal opcode 0x%02X", (3<<6)|(y<<3)|z))
	case 5:
		if q == 0 { // PUSH rp2[p]
			c.pushStack(c.getRP2(p))
			return 16
		}
		if p == 0 { // CALL nn
			addr := c.readImmediateWord()
			c.pushStack(c.pc)
			c.pc = addr
			return 24
		}
		panic(fmt.Sprintf("illegal opcode 0x%02X", (3<<6)|(y<<3)|z))
	case 6:
		c.aluOp(y, c.readImmediate())
		return 8
	case 7: // RST y*8
		c.pushStack(c.pc)
		c.pc = uint16(y) * 8
		return 16
	}
	panic("unreachable")
}

// aluOp applies one of the eight ALU operations (ADD,ADC,SUB,SBC,AND,XOR,OR,CP)
// selected by y to register A and value.
func (c *CPU) aluOp(y uint8, value uint8) {
	switch y {
	case 0:
		c.addToA(value)
	case 1:
		c.adc(value)
	case 2:
		c.sub(value)
	case 3:
		c.sbc(value)
	case 4:
		c.and(value)
	case 5:
		c.xor(value)
	case 6:
		c.or(value)
	case 7:
		c.cp(value)
	}
}

func (c *CPU) incReg(idx uint8) {
	if idx == 6 {
		v := c.bus.Read(c.getHL())
		c.inc(&v)
		c.bus.Write(c.getHL(), v)
		return
	}
	c.inc(c.regPtr(idx))
}

func (c *CPU) decReg(idx uint8) {
	if idx == 6 {
		v := c.bus.Read(c.getHL())
		c.dec(&v)
		c.bus.Write(c.getHL(), v)
		return
	}
	c.dec(c.regPtr(idx))
}

// reg8/setReg8 implement the 3-bit register index used throughout the
// primary opcode table: 0=B,1=C,2=D,3=E,4=H,5=L,6=(HL),7=A.
func (c *CPU) reg8(idx uint8) uint8 {
	if idx == 6 {
		return c.bus.Read(c.getHL())
	}
	return *c.regPtr(idx)
}

func (c *CPU) setReg8(idx uint8, v uint8) {
	if idx == 6 {
		c.bus.Write(c.getHL(), v)
		return
	}
	*c.regPtr(idx) = v
}

func (c *CPU) regPtr(idx uint8) *uint8 {
	switch idx {
	case 0:
		return &c.b
	case 1:
		return &c.c
	case 2:
		return &c.d
	case 3:
		return &c.e
	case 4:
		return &c.h
	case 5:
		return &c.l
	case 7:
		return &c.a
	}
	panic(fmt.Sprintf("regPtr: invalid register index %d", idx))
}

// getRP/setRP implement the rp[p] 16-bit register pairing used by LD
// rp,nn / INC rp / DEC rp / ADD HL,rp: 0=BC,1=DE,2=HL,3=SP.
func (c *CPU) getRP(p uint8) uint16 {
	switch p {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	case 2:
		return c.getHL()
	default:
		return c.sp
	}
}

func (c *CPU) setRP(p uint8, v uint16) {
	switch p {
	case 0:
		c.setBC(v)
	case 1:
		c.setDE(v)
	case 2:
		c.setHL(v)
	default:
		c.sp = v
	}
}

// getRP2/setRP2 implement the rp2[p] pairing used by PUSH/POP, which uses
// AF instead of SP: 0=BC,1=DE,2=HL,3=AF.
func (c *CPU) getRP2(p uint8) uint16 {
	if p == 3 {
		return c.getAF()
	}
	return c.getRP(p)
}

func (c *CPU) setRP2(p uint8, v uint16) {
	if p == 3 {
		c.setAF(v)
		return
	}
	c.setRP(p, v)
}

// indirectAddr implements the (BC)/(DE)/(HL+)/(HL-) addressing used by
// LD (rr),A and LD A,(rr) in the z=2 block, indexed by p.
func (c *CPU) indirectAddr(p uint8) uint16 {
	switch p {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	case 2:
		hl := c.getHL()
		c.setHL(hl + 1)
		return hl
	default:
		hl := c.getHL()
		c.setHL(hl - 1)
		return hl
	}
}

// condition evaluates cc[y]: 0=NZ,1=Z,2=NC,3=C.
func (c *CPU) condition(y uint8) bool {
	switch y {
	case 0:
		return !c.isSetFlag(zeroFlag)
	case 1:
		return c.isSetFlag(zeroFlag)
	case 2:
		return !c.isSetFlag(carryFlag)
	default:
		return c.isSetFlag(carryFlag)
	}
}
