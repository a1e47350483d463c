package memory

import (
	"github.com/vkeeler/dmgcore/internal/addr"
	"github.com/vkeeler/dmgcore/internal/bit"
)

// timerBitForTAC maps TAC's clock-select bits (0-3) to the bit position of
// the internal 16-bit divider that, on its falling edge, increments TIMA.
var timerBitForTAC = [4]uint16{9, 3, 5, 7}

// timer models DIV/TIMA/TMA/TAC: a free-running 16-bit divider (DIV is its
// upper byte) plus a selectable-frequency counter. After an overflow TIMA
// reads 0 for one machine cycle; then TMA is reloaded into it and the
// TIMER interrupt is raised together.
type timer struct {
	counter      uint16 // free-running divider; DIV is counter>>8
	lastEdgeBit  bool
	overflowIn   int // cycles remaining until TMA reload + interrupt
	pendingIRQ   bool

	tima, tma, tac byte

	onOverflow func()
}

func newTimer() *timer {
	return &timer{}
}

func (t *timer) Reset(seed uint16) {
	t.counter = seed
	t.lastEdgeBit = false
	t.overflowIn = 0
	t.pendingIRQ = false
}

func (t *timer) div() byte { return bit.High(t.counter) }

func (t *timer) Read(address uint16) byte {
	switch {
	case address == addr.DIV:
		return t.div()
	case address == addr.TIMA:
		return t.tima
	case address == addr.TMA:
		return t.tma
	case address == addr.TAC:
		return t.tac
	default:
		return 0xFF
	}
}

func (t *timer) Write(address uint16, value byte) {
	switch {
	case address == addr.DIV:
		t.counter = 0
	case address == addr.TIMA:
		t.tima = value
	case address == addr.TMA:
		t.tma = value
	case address == addr.TAC:
		t.tac = value
	}
}

// Tick advances the timer by cycles T-cycles, one at a time so the
// falling-edge detection on the selected divider bit stays exact.
func (t *timer) Tick(cycles int) {
	if t.overflowIn > 0 {
		t.overflowIn -= cycles
		if t.overflowIn <= 0 {
			t.tima = t.tma
			t.pendingIRQ = true
			t.overflowIn = 0
		}
	}

	if t.pendingIRQ {
		if t.onOverflow != nil {
			t.onOverflow()
		}
		t.pendingIRQ = false
	}

	enabled := t.tac&0x04 != 0
	selectBit := timerBitForTAC[t.tac&0x03]

	for i := 0; i < cycles; i++ {
		t.counter++

		if t.overflowIn > 0 {
			continue
		}

		if !enabled {
			t.lastEdgeBit = false
			continue
		}

		currentBit := bit.IsSet16(selectBit, t.counter)
		if t.lastEdgeBit && !currentBit {
			if t.tima == 0xFF {
				t.tima = 0
				t.overflowIn = 4
			} else {
				t.tima++
			}
		}
		t.lastEdgeBit = currentBit
	}
}

// timerState is the timer's gob-serializable snapshot.
type timerState struct {
	Counter              uint16
	LastEdgeBit          bool
	OverflowIn           int
	PendingIRQ           bool
	TIMA, TMA, TAC       byte
}

func (t *timer) saveState() timerState {
	return timerState{
		Counter:     t.counter,
		LastEdgeBit: t.lastEdgeBit,
		OverflowIn:  t.overflowIn,
		PendingIRQ:  t.pendingIRQ,
		TIMA:        t.tima,
		TMA:         t.tma,
		TAC:         t.tac,
	}
}

func (t *timer) loadState(s timerState) {
	t.counter = s.Counter
	t.lastEdgeBit = s.LastEdgeBit
	t.overflowIn = s.OverflowIn
	t.pendingIRQ = s.PendingIRQ
	t.tima = s.TIMA
	t.tma = s.TMA
	t.tac = s.TAC
}
