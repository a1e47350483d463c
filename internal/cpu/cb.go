package cpu

// executeCB decodes a CB-prefixed opcode. The encoding groups into
// (op_family, reg_index) pairs from the bit pattern `ttttt rrr`: family
// 0-7 are the rotate/shift/swap ops, 8-15 BIT, 16-23 RES, 24-31 SET, each
// applied to one of the 8 registers (6 = (HL), needing a read-modify-write
// through the bus instead of a register pointer).
func (c *CPU) executeCB(op uint8) int {
	family := op >> 3
	reg := op & 7

	if family <= 7 {
		return c.executeCBRotate(family, reg)
	}

	bitIndex := (op >> 3) & 7

	switch {
	case family <= 15: // BIT bitIndex,reg
		c.bit(bitIndex, c.reg8(reg))
		if reg == 6 {
			return 12
		}
		return 8
	case family <= 23: // RES bitIndex,reg
		c.modifyReg8(reg, func(v *uint8) { c.res(bitIndex, v) })
	default: // SET bitIndex,reg
		c.modifyReg8(reg, func(v *uint8) { c.set(bitIndex, v) })
	}

	if reg == 6 {
		return 16
	}
	return 8
}

func (c *CPU) executeCBRotate(family, reg uint8) int {
	var op func(*uint8)
	switch family {
	case 0:
		op = c.rlc
	case 1:
		op = c.rrc
	case 2:
		op = c.rl
	case 3:
		op = c.rr
	case 4:
		op = c.sla
	case 5:
		op = c.sra
	case 6:
		op = c.swap
	default:
		op = c.srl
	}

	c.modifyReg8(reg, op)
	if reg == 6 {
		return 16
	}
	return 8
}

// modifyReg8 applies fn to the register or memory cell identified by idx,
// writing back through the bus for idx==6 ((HL)).
func (c *CPU) modifyReg8(idx uint8, fn func(*uint8)) {
	if idx == 6 {
		v := c.bus.Read(c.getHL())
		fn(&v)
		c.bus.Write(c.getHL(), v)
		return
	}
	fn(c.regPtr(idx))
}
