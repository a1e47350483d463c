// Package audio implements the DMG's 4-channel APU: CH1 (square+sweep),
// CH2 (square), CH3 (wave), CH4 (noise), mixed to stereo PCM and
// downsampled to a host sample rate. It is driven by T-cycles the same
// way the memory bus and PPU are, so a single core loop can tick all
// three in lockstep.
package audio

import (
	"sync"

	"github.com/vkeeler/dmgcore/internal/addr"
	"github.com/vkeeler/dmgcore/internal/bit"
)

// APU is the Audio Processing Unit: mostly counters and timers that tick
// at fixed frequency steps and a mixer that downsamples the result. The
// PCM buffer is the sole surface shared with a concurrent audio callback
// (spec §5), so access to it is serialized by sampleMu independently of
// the rest of the APU's state, which only the single emulator thread
// touches.
type APU struct {
	enabled           bool
	ch                [4]channel
	volLeft, volRight uint8

	mixLeftAcc         int64
	mixRightAcc        int64
	mixAccumCycles     int
	sampleMu           sync.Mutex
	pcmBuffer          []int16
	pcmCursor          int
	pcmCycleAcc        float64
	pcmCyclesPerSample float64
	hostSampleRate     int

	step   int
	cycles int

	nr10, nr11, nr12, nr13, nr14 uint8
	nr21, nr22, nr23, nr24       uint8
	nr30, nr31, nr32, nr33, nr34 uint8
	nr41, nr42, nr43, nr44       uint8
	nr50, nr51, nr52             uint8
	waveRAM                      [waveRAMSize]uint8
}

// channel holds the runtime state of one of the four APU channels; not
// every field applies to every channel type.
type channel struct {
	enabled bool

	left, right bool

	duty   uint8
	timer  uint8
	length uint16
	volume uint8

	sweepPeriod  uint8
	sweepDown    bool
	sweepStep    uint8
	sweepEnabled bool
	sweepTimer   uint8
	shadowFreq   uint16
	sweepNegUsed bool

	envelopePace    uint8
	envelopeUp      bool
	envelopeCounter uint8
	envelopeLatched bool

	period       uint16
	trigger      bool
	lengthEnable bool
	freqTimer    int
	dutyStep     uint8
	waveIndex    uint8
	waveSample   uint8
	noiseTimer   int

	lfsr        uint16
	use7bitLFSR bool
	shift       uint8
	divider     uint8

	dacEnabled bool

	muted bool
}

// calculateSweepFrequency computes CH1's next sweep target, short-circuiting
// to the unchanged shadow frequency when the shift is zero.
func (ch *channel) calculateSweepFrequency() (newFreq uint16, overflow bool) {
	if ch.sweepStep == 0 {
		return ch.shadowFreq, false
	}
	return ch.checkSweepOverflow()
}

// checkSweepOverflow runs the sweep math regardless of sweepStep, since
// the overflow check fires even on a zero-shift tick. It does not mutate
// channel state.
func (ch *channel) checkSweepOverflow() (newFreq uint16, overflow bool) {
	freqChange := ch.shadowFreq >> ch.sweepStep
	if ch.sweepDown {
		if freqChange > ch.shadowFreq {
			newFreq = 0
		} else {
			newFreq = ch.shadowFreq - freqChange
		}
	} else {
		newFreq = ch.shadowFreq + freqChange
	}
	return newFreq, newFreq > 2047
}

// New builds an APU that downsamples to a 44.1kHz host sample rate.
func New() *APU {
	a := &APU{hostSampleRate: 44100}
	a.pcmCyclesPerSample = float64(cpuFrequency) / float64(a.hostSampleRate)
	return a
}

// Tick advances the APU by cycles T-cycles: stepping each channel's
// generator, accumulating the mixed level, and flushing to PCM once a
// host sample period's worth of cycles has accumulated.
func (a *APU) Tick(cycles int) {
	if !a.enabled {
		return
	}

	a.tickGenerators(cycles)

	a.cycles += cycles
	for a.cycles >= cyclesPerStep {
		a.cycles -= cyclesPerStep
		a.tickSequence()
	}
}

func (a *APU) tickGenerators(cycles int) {
	if cycles <= 0 {
		return
	}

	var leftLevel, rightLevel int64
	for i := range a.ch {
		ch := &a.ch[i]
		if !ch.enabled || !ch.dacEnabled || ch.muted {
			continue
		}

		var level int64
		switch i {
		case 0, 1:
			level = a.stepSquare(ch, cycles)
		case 2:
			level = a.stepWave(ch, cycles)
		case 3:
			level = a.stepNoise(ch, cycles)
		}
		if level == 0 {
			continue
		}

		if ch.left {
			leftLevel += level
		}
		if ch.right {
			rightLevel += level
		}
	}
	a.mixLeftAcc += leftLevel * int64(cycles)
	a.mixRightAcc += rightLevel * int64(cycles)
	a.mixAccumCycles += cycles
	a.flushMix(cycles)
}

func (a *APU) flushMix(cycles int) {
	if a.hostSampleRate <= 0 || a.pcmCyclesPerSample == 0 {
		return
	}

	a.pcmCycleAcc += float64(cycles)
	if a.pcmCycleAcc < a.pcmCyclesPerSample {
		return
	}
	a.pcmCycleAcc -= a.pcmCyclesPerSample

	left, right := a.exportMixedSample()

	a.sampleMu.Lock()
	a.pcmBuffer = append(a.pcmBuffer, left, right)
	a.dropOldestIfOverCapacity()
	a.sampleMu.Unlock()
}

// maxBufferedFrames bounds the producer/consumer sample buffer (spec §5):
// beyond ~2048 stereo frames, the oldest samples are dropped rather than
// letting the buffer grow unbounded when nothing drains it.
const maxBufferedFrames = 2048

func (a *APU) dropOldestIfOverCapacity() {
	buffered := (len(a.pcmBuffer) - a.pcmCursor) / 2
	if buffered <= maxBufferedFrames {
		return
	}
	excessFrames := buffered - maxBufferedFrames
	a.pcmCursor += excessFrames * 2
}

func (a *APU) exportMixedSample() (int16, int16) {
	if a.mixAccumCycles == 0 {
		return 0, 0
	}

	leftAvg := float64(a.mixLeftAcc) / float64(a.mixAccumCycles)
	rightAvg := float64(a.mixRightAcc) / float64(a.mixAccumCycles)

	left, right := scaleToPCM(leftAvg, a.volLeft), scaleToPCM(rightAvg, a.volRight)

	a.mixLeftAcc = 0
	a.mixRightAcc = 0
	a.mixAccumCycles = 0

	return left, right
}

func (a *APU) stepSquare(ch *channel, cycles int) int64 {
	period := a.squarePeriodCycles(ch)
	if period == 0 {
		return 0
	}
	if ch.freqTimer <= 0 {
		ch.freqTimer = period
	}

	ch.freqTimer -= cycles
	for ch.freqTimer <= 0 {
		ch.freqTimer += period
		ch.dutyStep = (ch.dutyStep + 1) & 0x7
	}

	pattern := dutyPatterns[ch.duty&0x3][ch.dutyStep]
	if ch.volume == 0 {
		return 0
	}
	level := int64(ch.volume)
	if pattern == 0 {
		// Mirror the zero phase below the axis to keep the signal DC-free.
		return -level
	}
	return level
}

func (a *APU) stepWave(ch *channel, cycles int) int64 {
	period := a.wavePeriodCycles(ch)
	if period == 0 {
		return 0
	}
	if ch.freqTimer <= 0 {
		ch.freqTimer = period
	}

	ch.freqTimer -= cycles
	for ch.freqTimer <= 0 {
		ch.freqTimer += period
		ch.waveIndex = (ch.waveIndex + 1) & 0x1F
	}

	sample := int64(a.readWaveSample(ch.waveIndex)) - 8
	switch ch.volume & 0b11 {
	case 0:
		return 0
	case 1:
		return sample
	case 2:
		return sample / 2
	case 3:
		return sample / 4
	default:
		return sample
	}
}

func (a *APU) stepNoise(ch *channel, cycles int) int64 {
	period := a.noisePeriodCycles(ch)
	if period == 0 {
		return 0
	}
	if ch.lfsr == 0 {
		ch.lfsr = 0x7FFF
	}
	if ch.noiseTimer <= 0 {
		ch.noiseTimer = period
	}

	ch.noiseTimer -= cycles
	for ch.noiseTimer <= 0 {
		ch.noiseTimer += period
		newBit := (ch.lfsr & 1) ^ ((ch.lfsr >> 1) & 1)
		ch.lfsr = (ch.lfsr >> 1) | (newBit << 14)
		if ch.use7bitLFSR {
			ch.lfsr = (ch.lfsr &^ (1 << 6)) | (newBit << 6)
		}
	}

	if ch.volume == 0 {
		return 0
	}
	level := int64(ch.volume)
	if bit.IsSet(0, uint8(ch.lfsr)) {
		// The LFSR's low bit is inverted before it reaches the DAC.
		return -level
	}
	return level
}

func (a *APU) squarePeriodCycles(ch *channel) int {
	period := 2048 - int(ch.period&0x7FF)
	if period <= 0 {
		return 0
	}
	return period * 4
}

func (a *APU) wavePeriodCycles(ch *channel) int {
	period := 2048 - int(ch.period&0x7FF)
	if period <= 0 {
		return 0
	}
	return period * 2
}

var noiseDividers = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

func (a *APU) noisePeriodCycles(ch *channel) int {
	div := noiseDividers[ch.divider&0x7]
	period := div << ch.shift
	if period <= 0 {
		return 0
	}
	return period
}

func (a *APU) readWaveSample(index uint8) uint8 {
	byteIdx := index >> 1
	value := a.waveRAM[byteIdx]
	a.ch[2].waveSample = value
	if index&1 == 0 {
		return value >> 4
	}
	return value & 0x0F
}

// waveRAMLocked reports whether wave RAM is currently shadowed by CH3's
// internal sample buffer, per Pan Docs: when CH3 is active with its DAC
// on, the CPU sees the live sample buffer instead of the backing RAM.
func (a *APU) waveRAMLocked() bool {
	return a.enabled && a.ch[2].enabled && a.ch[2].dacEnabled
}

var dutyPatterns = [4][8]int64{
	{0, 1, 0, 0, 0, 0, 0, 0},
	{0, 1, 1, 0, 0, 0, 0, 0},
	{0, 1, 1, 1, 1, 0, 0, 0},
	{1, 0, 0, 1, 1, 1, 1, 1},
}

const sampleScale = 32767.0 / 15.0

func scaleToPCM(avg float64, masterVol uint8) int16 {
	gain := float64(masterVol+1) / 8.0
	value := avg * gain * sampleScale
	if value > 32767 {
		value = 32767
	} else if value < -32768 {
		value = -32768
	}
	return int16(value)
}

// tickSequence advances the 512Hz frame sequencer by one step:
//
//	step | length (256Hz) | sweep (128Hz) | envelope (64Hz)
//	0    | yes            | -             | -
//	1    | -              | -             | -
//	2    | yes            | yes           | -
//	3    | -              | -             | -
//	4    | yes            | -             | -
//	5    | -              | -             | -
//	6    | yes            | yes           | -
//	7    | -              | -             | yes
func (a *APU) tickSequence() {
	switch a.step {
	case 0, 4:
		a.tickLength()
	case 2, 6:
		a.tickLength()
		a.tickSweep()
	case 7:
		a.tickEnvelope()
	}

	a.step++
	a.step %= 8
}

func (a *APU) tickLength() {
	for i := range a.ch {
		if a.ch[i].lengthEnable && a.ch[i].length > 0 {
			a.ch[i].length--
			if a.ch[i].length == 0 {
				a.ch[i].enabled = false
			}
		}
	}
}

func (a *APU) tickSweep() {
	ch := &a.ch[0]

	if !ch.sweepEnabled {
		return
	}

	ch.sweepTimer--
	if ch.sweepTimer > 0 {
		return
	}

	ch.sweepTimer = ch.sweepPeriod
	if ch.sweepTimer == 0 {
		ch.sweepTimer = 8
	}

	if ch.sweepPeriod == 0 {
		return
	}

	newFrequency, overflow := ch.checkSweepOverflow()
	if overflow {
		ch.enabled = false
		return
	}
	if ch.sweepDown {
		ch.sweepNegUsed = true
	}
	if ch.sweepStep == 0 {
		return
	}
	ch.shadowFreq = newFrequency
	ch.period = newFrequency
	a.nr14 = (a.nr14 & 0b11111000) | uint8((newFrequency>>8)&0b111)
	a.nr13 = uint8(newFrequency)

	// Per Pan Docs: the overflow check runs a second time after updating
	// the frequency registers, purely to catch the new value overflowing.
	if _, overflow := ch.checkSweepOverflow(); overflow {
		ch.enabled = false
	}
}

func (a *APU) tickEnvelope() {
	for _, idx := range [3]int{0, 1, 3} {
		ch := &a.ch[idx]
		if !ch.dacEnabled {
			continue
		}
		if ch.envelopeLatched {
			continue
		}

		pace := ch.envelopePace
		if pace == 0 {
			pace = 8
		}

		if ch.envelopeCounter == 0 {
			ch.envelopeCounter = pace
		}
		ch.envelopeCounter--
		if ch.envelopeCounter > 0 {
			continue
		}

		if ch.envelopeUp {
			if ch.volume < 15 {
				ch.volume++
				ch.envelopeCounter = pace
			} else {
				ch.envelopeLatched = true
				ch.envelopeCounter = 0
			}
		} else {
			if ch.volume > 0 {
				ch.volume--
				ch.envelopeCounter = pace
			} else {
				ch.envelopeLatched = true
				ch.envelopeCounter = 0
			}
		}
	}
}

// ReadRegister returns the masked value of an APU register or wave RAM
// byte; unused/write-only bits read as 1.
func (a *APU) ReadRegister(address uint16) uint8 {
	switch address {
	case addr.NR10:
		return a.nr10 | 0b1000_0000
	case addr.NR11:
		return a.nr11 | 0b0011_1111
	case addr.NR12:
		return a.nr12
	case addr.NR13:
		return 0xFF
	case addr.NR14:
		return a.nr14 | 0b1011_1111
	case addr.NR21:
		return a.nr21 | 0b0011_1111
	case addr.NR22:
		return a.nr22
	case addr.NR23:
		return 0xFF
	case addr.NR24:
		return a.nr24 | 0b1011_1111
	case addr.NR30:
		return a.nr30 | 0b0111_1111
	case addr.NR31:
		return 0xFF
	case addr.NR32:
		return a.nr32 | 0b1001_1111
	case addr.NR33:
		return 0xFF
	case addr.NR34:
		return a.nr34 | 0b1011_1111
	case addr.NR41:
		return 0xFF
	case addr.NR42:
		return a.nr42
	case addr.NR43:
		return a.nr43
	case addr.NR44:
		return a.nr44 | 0b1011_1111
	case addr.NR50:
		return a.nr50
	case addr.NR51:
		return a.nr51
	case addr.NR52:
		status := uint8(0b0111_0000)
		if a.enabled {
			status = bit.Set(7, status)
		}
		for i := range a.ch {
			if a.ch[i].enabled {
				status = bit.Set(uint8(i), status)
			}
		}
		return status
	}
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		if a.waveRAMLocked() {
			return a.ch[2].waveSample
		}
		return a.waveRAM[address-addr.WaveRAMStart]
	}
	return 0xFF
}

// WriteRegister stores value at an APU register or wave RAM address and
// re-derives the channel state it feeds.
func (a *APU) WriteRegister(address uint16, value uint8) {
	isInWaveRAM := address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd

	if !a.enabled && address != addr.NR52 && !isInWaveRAM {
		return
	}

	switch address {
	case addr.NR10:
		a.nr10 = value
	case addr.NR11:
		a.nr11 = value
		a.ch[0].length = 64 - uint16(bit.ExtractBits(value, 5, 0))
	case addr.NR12:
		a.nr12 = value
		a.reloadEnvelopeCounter(&a.ch[0], value)
	case addr.NR13:
		a.nr13 = value
	case addr.NR14:
		a.nr14 = value
	case addr.NR21:
		a.nr21 = value
		a.ch[1].length = 64 - uint16(bit.ExtractBits(value, 5, 0))
	case addr.NR22:
		a.nr22 = value
		a.reloadEnvelopeCounter(&a.ch[1], value)
	case addr.NR23:
		a.nr23 = value
	case addr.NR24:
		a.nr24 = value
	case addr.NR30:
		a.nr30 = value
	case addr.NR31:
		a.nr31 = value
		a.ch[2].length = 256 - uint16(value)
	case addr.NR32:
		a.nr32 = value
	case addr.NR33:
		a.nr33 = value
	case addr.NR34:
		a.nr34 = value
	case addr.NR41:
		a.nr41 = value
		a.ch[3].length = 64 - uint16(bit.ExtractBits(value, 5, 0))
	case addr.NR42:
		a.nr42 = value
		a.reloadEnvelopeCounter(&a.ch[3], value)
	case addr.NR43:
		a.nr43 = value
	case addr.NR44:
		a.nr44 = value
	case addr.NR50:
		a.nr50 = value
	case addr.NR51:
		a.nr51 = value
	case addr.NR52:
		a.nr52 = value
	default:
	}

	if isInWaveRAM {
		offset := address - addr.WaveRAMStart
		if a.waveRAMLocked() {
			idx := a.ch[2].waveIndex >> 1
			a.waveRAM[idx] = value
			a.ch[2].waveSample = value
		} else {
			a.waveRAM[offset] = value
		}
	}

	a.mapRegistersToState()
}

func (a *APU) reloadEnvelopeCounter(ch *channel, nrX2 uint8) {
	pace := bit.ExtractBits(nrX2, 2, 0)
	if pace == 0 {
		ch.envelopeCounter = 8
	} else {
		ch.envelopeCounter = pace
	}
	ch.envelopeLatched = false
}

// handleLengthEnableTransition centralizes the length/trigger oddities
// documented at https://gbdev.io/pandocs/Audio_details.html#obscure-behavior:
// enabling length in the second half of a sequencer period clocks it once,
// a trigger reloads length from zero before that clock, and a trigger
// immediately after a clocked-to-zero length forces the extra clock too.
func (a *APU) handleLengthEnableTransition(prevEnabled bool, lengthBefore uint16, triggered bool, maxLength uint16, chIdx int) {
	ch := &a.ch[chIdx]
	lengthWasZero := lengthBefore == 0
	clockOnEnable := !prevEnabled && ch.lengthEnable && a.step%2 == 1 && lengthBefore > 0

	if triggered && (lengthWasZero || (clockOnEnable && lengthBefore == 1)) {
		ch.length = maxLength
	}

	if !ch.lengthEnable {
		return
	}

	forceClock := lengthWasZero && triggered && ch.length > 0
	if !forceClock && prevEnabled {
		return
	}

	if a.step%2 == 1 && ch.length > 0 {
		ch.length--
		if ch.length == 0 {
			ch.enabled = false
		}
	}
}

func (a *APU) mapRegistersToState() {
	a.enabled = bit.IsSet(7, a.nr52)

	if !a.enabled {
		a.nr10, a.nr11, a.nr12, a.nr13, a.nr14 = 0, 0, 0, 0, 0
		a.nr21, a.nr22, a.nr23, a.nr24 = 0, 0, 0, 0
		a.nr30, a.nr31, a.nr32, a.nr33, a.nr34 = 0, 0, 0, 0, 0
		a.nr41, a.nr42, a.nr43, a.nr44 = 0, 0, 0, 0
		a.nr50, a.nr51 = 0, 0
		for i := range a.ch {
			a.ch[i].enabled = false
		}
	}

	for i := range a.ch {
		a.ch[i].right = bit.IsSet(uint8(i), a.nr51)
		a.ch[i].left = bit.IsSet(uint8(i+4), a.nr51)
	}

	a.volLeft, a.volRight = bit.ExtractBits(a.nr50, 6, 4), bit.ExtractBits(a.nr50, 2, 0)

	a.mapChannel1()
	a.mapChannel2()
	a.mapChannel3()
	a.mapChannel4()

	for i := range a.ch {
		if !a.ch[i].dacEnabled {
			a.ch[i].enabled = false
		}
	}
}

func (a *APU) mapChannel1() {
	ch := &a.ch[0]

	prevSweepDown := ch.sweepDown
	ch.sweepPeriod = bit.ExtractBits(a.nr10, 6, 4)
	ch.sweepDown = bit.IsSet(3, a.nr10)
	ch.sweepStep = bit.ExtractBits(a.nr10, 2, 0)
	if !ch.sweepDown && prevSweepDown && ch.sweepNegUsed && (ch.sweepPeriod > 0 || ch.sweepStep > 0) {
		// Flipping subtract to add after a subtract calc kills CH1 outright.
		ch.enabled = false
	}

	ch.duty = bit.ExtractBits(a.nr11, 7, 6)
	ch.timer = bit.ExtractBits(a.nr11, 5, 0)

	ch.volume = bit.ExtractBits(a.nr12, 7, 4)
	ch.envelopeUp = bit.IsSet(3, a.nr12)
	ch.envelopePace = bit.ExtractBits(a.nr12, 2, 0)
	ch.dacEnabled = ch.volume > 0 || ch.envelopeUp

	ch.period = bit.Combine(a.nr14&0b111, a.nr13)

	prevLenEnable := ch.lengthEnable
	lengthBefore := ch.length
	triggered := bit.IsSet(7, a.nr14)
	ch.lengthEnable = bit.IsSet(6, a.nr14)
	ch.trigger = triggered
	if ch.trigger {
		if ch.dacEnabled {
			ch.enabled = true
		}
		a.reloadEnvelopeCounter(ch, a.nr12)
		ch.dutyStep = 0
		ch.freqTimer = a.squarePeriodCycles(ch)

		ch.sweepEnabled = ch.sweepPeriod > 0 || ch.sweepStep > 0
		ch.sweepTimer = ch.sweepPeriod
		if ch.sweepTimer == 0 {
			ch.sweepTimer = 8
		}
		ch.shadowFreq = ch.period
		ch.sweepNegUsed = false

		if ch.sweepStep != 0 {
			if ch.sweepDown {
				ch.sweepNegUsed = true
			}
			if _, overflow := ch.calculateSweepFrequency(); overflow {
				ch.enabled = false
			}
		}

		a.nr14 = bit.Reset(7, a.nr14)
		ch.trigger = false
	}
	a.handleLengthEnableTransition(prevLenEnable, lengthBefore, triggered, 64, 0)
}

func (a *APU) mapChannel2() {
	ch := &a.ch[1]

	ch.duty = bit.ExtractBits(a.nr21, 7, 6)
	ch.timer = bit.ExtractBits(a.nr21, 5, 0)

	ch.volume = bit.ExtractBits(a.nr22, 7, 4)
	ch.envelopeUp = bit.IsSet(3, a.nr22)
	ch.envelopePace = bit.ExtractBits(a.nr22, 2, 0)
	ch.dacEnabled = ch.volume > 0 || ch.envelopeUp

	ch.period = bit.Combine(a.nr24&0b111, a.nr23)

	prevLenEnable := ch.lengthEnable
	lengthBefore := ch.length
	triggered := bit.IsSet(7, a.nr24)
	ch.lengthEnable = bit.IsSet(6, a.nr24)
	ch.trigger = triggered
	if ch.trigger {
		if ch.dacEnabled {
			ch.enabled = true
		}
		a.reloadEnvelopeCounter(ch, a.nr22)
		ch.dutyStep = 0
		ch.freqTimer = a.squarePeriodCycles(ch)
		a.nr24 = bit.Reset(7, a.nr24)
		ch.trigger = false
	}
	a.handleLengthEnableTransition(prevLenEnable, lengthBefore, triggered, 64, 1)
}

func (a *APU) mapChannel3() {
	ch := &a.ch[2]

	ch.dacEnabled = bit.IsSet(7, a.nr30)
	ch.timer = a.nr31
	ch.volume = bit.ExtractBits(a.nr32, 6, 5)
	ch.period = bit.Combine(a.nr34&0b111, a.nr33)

	prevLenEnable := ch.lengthEnable
	lengthBefore := ch.length
	triggered := bit.IsSet(7, a.nr34)
	ch.lengthEnable = bit.IsSet(6, a.nr34)
	ch.trigger = triggered
	if ch.trigger {
		if ch.dacEnabled {
			ch.enabled = true
		}
		ch.freqTimer = a.wavePeriodCycles(ch)
		ch.waveIndex = 0
		ch.waveSample = a.waveRAM[0]
		a.nr34 = bit.Reset(7, a.nr34)
		ch.trigger = false
	}
	a.handleLengthEnableTransition(prevLenEnable, lengthBefore, triggered, 256, 2)
}

func (a *APU) mapChannel4() {
	ch := &a.ch[3]

	ch.timer = bit.ExtractBits(a.nr41, 5, 0)

	ch.volume = bit.ExtractBits(a.nr42, 7, 4)
	ch.envelopeUp = bit.IsSet(3, a.nr42)
	ch.envelopePace = bit.ExtractBits(a.nr42, 2, 0)

	ch.shift = bit.ExtractBits(a.nr43, 7, 4)
	ch.use7bitLFSR = bit.IsSet(3, a.nr43)
	ch.divider = bit.ExtractBits(a.nr43, 2, 0)

	ch.dacEnabled = ch.volume > 0 || ch.envelopeUp

	prevLenEnable := ch.lengthEnable
	lengthBefore := ch.length
	triggered := bit.IsSet(7, a.nr44)
	ch.lengthEnable = bit.IsSet(6, a.nr44)
	ch.trigger = triggered
	if ch.trigger {
		if ch.dacEnabled {
			ch.enabled = true
		}
		a.reloadEnvelopeCounter(ch, a.nr42)
		ch.lfsr = 0x7FFF
		ch.noiseTimer = a.noisePeriodCycles(ch)
		a.nr44 = bit.Reset(7, a.nr44)
		ch.trigger = false
	}
	a.handleLengthEnableTransition(prevLenEnable, lengthBefore, triggered, 64, 3)
}

// Samples returns up to count interleaved stereo frames, zero-padded if
// fewer are currently buffered.
func (a *APU) Samples(count int) []int16 {
	if count <= 0 {
		return nil
	}

	a.sampleMu.Lock()
	defer a.sampleMu.Unlock()

	needed := count * 2
	available := len(a.pcmBuffer) - a.pcmCursor
	if available <= 0 {
		return make([]int16, needed)
	}

	out := make([]int16, needed)
	toCopy := min(available, needed)
	copy(out, a.pcmBuffer[a.pcmCursor:a.pcmCursor+toCopy])
	a.pcmCursor += toCopy

	if a.pcmCursor >= len(a.pcmBuffer) {
		a.pcmBuffer = a.pcmBuffer[:0]
		a.pcmCursor = 0
	}

	return out
}

// DrainAll returns every currently buffered interleaved stereo sample
// without zero-padding, emptying the buffer. Unlike Samples (which a
// fixed-rate host audio callback pulls from), this is for a caller that
// wants exactly what was produced since the last drain, e.g. the core's
// per-step audio sink push loop.
func (a *APU) DrainAll() []int16 {
	a.sampleMu.Lock()
	defer a.sampleMu.Unlock()

	if a.pcmCursor >= len(a.pcmBuffer) {
		return nil
	}
	out := make([]int16, len(a.pcmBuffer)-a.pcmCursor)
	copy(out, a.pcmBuffer[a.pcmCursor:])
	a.pcmBuffer = a.pcmBuffer[:0]
	a.pcmCursor = 0
	return out
}

// ToggleChannel flips a channel's debug mute flag.
func (a *APU) ToggleChannel(idx int) {
	if idx < 0 || idx >= len(a.ch) {
		return
	}
	a.ch[idx].muted = !a.ch[idx].muted
}

// SoloChannel mutes every channel except idx; calling it again with the
// same index clears the solo.
func (a *APU) SoloChannel(idx int) {
	if idx < 0 || idx >= len(a.ch) {
		return
	}

	soloed := !a.ch[idx].muted
	for i := range a.ch {
		if i != idx && !a.ch[i].muted {
			soloed = false
		}
	}
	if soloed {
		for i := range a.ch {
			a.ch[i].muted = false
		}
		return
	}

	for i := range a.ch {
		a.ch[i].muted = i != idx
	}
}

// ChannelStatus reports whether each channel is currently producing
// sound, independent of debug mute/solo state.
func (a *APU) ChannelStatus() (ch1, ch2, ch3, ch4 bool) {
	return a.ch[0].enabled, a.ch[1].enabled, a.ch[2].enabled, a.ch[3].enabled
}

// ChannelState is one channel's gob-serializable snapshot; unused fields
// for a given channel type are left zero.
type ChannelState struct {
	Enabled         bool
	Left, Right     bool
	Duty            uint8
	Timer           uint8
	Length          uint16
	Volume          uint8
	SweepPeriod     uint8
	SweepDown       bool
	SweepStep       uint8
	SweepEnabled    bool
	SweepTimer      uint8
	ShadowFreq      uint16
	SweepNegUsed    bool
	EnvelopePace    uint8
	EnvelopeUp      bool
	EnvelopeCounter uint8
	EnvelopeLatched bool
	Period          uint16
	Trigger         bool
	LengthEnable    bool
	FreqTimer       int
	DutyStep        uint8
	WaveIndex       uint8
	WaveSample      uint8
	NoiseTimer      int
	LFSR            uint16
	Use7bitLFSR     bool
	Shift           uint8
	Divider         uint8
	DACEnabled      bool
	Muted           bool
}

func (ch *channel) saveState() ChannelState {
	return ChannelState{
		Enabled: ch.enabled, Left: ch.left, Right: ch.right,
		Duty: ch.duty, Timer: ch.timer, Length: ch.length, Volume: ch.volume,
		SweepPeriod: ch.sweepPeriod, SweepDown: ch.sweepDown, SweepStep: ch.sweepStep,
		SweepEnabled: ch.sweepEnabled, SweepTimer: ch.sweepTimer, ShadowFreq: ch.shadowFreq,
		SweepNegUsed: ch.sweepNegUsed,
		EnvelopePace: ch.envelopePace, EnvelopeUp: ch.envelopeUp,
		EnvelopeCounter: ch.envelopeCounter, EnvelopeLatched: ch.envelopeLatched,
		Period: ch.period, Trigger: ch.trigger, LengthEnable: ch.lengthEnable,
		FreqTimer: ch.freqTimer, DutyStep: ch.dutyStep, WaveIndex: ch.waveIndex,
		WaveSample: ch.waveSample, NoiseTimer: ch.noiseTimer,
		LFSR: ch.lfsr, Use7bitLFSR: ch.use7bitLFSR, Shift: ch.shift, Divider: ch.divider,
		DACEnabled: ch.dacEnabled, Muted: ch.muted,
	}
}

func (ch *channel) loadState(s ChannelState) {
	ch.enabled, ch.left, ch.right = s.Enabled, s.Left, s.Right
	ch.duty, ch.timer, ch.length, ch.volume = s.Duty, s.Timer, s.Length, s.Volume
	ch.sweepPeriod, ch.sweepDown, ch.sweepStep = s.SweepPeriod, s.SweepDown, s.SweepStep
	ch.sweepEnabled, ch.sweepTimer, ch.shadowFreq = s.SweepEnabled, s.SweepTimer, s.ShadowFreq
	ch.sweepNegUsed = s.SweepNegUsed
	ch.envelopePace, ch.envelopeUp = s.EnvelopePace, s.EnvelopeUp
	ch.envelopeCounter, ch.envelopeLatched = s.EnvelopeCounter, s.EnvelopeLatched
	ch.period, ch.trigger, ch.lengthEnable = s.Period, s.Trigger, s.LengthEnable
	ch.freqTimer, ch.dutyStep, ch.waveIndex = s.FreqTimer, s.DutyStep, s.WaveIndex
	ch.waveSample, ch.noiseTimer = s.WaveSample, s.NoiseTimer
	ch.lfsr, ch.use7bitLFSR, ch.shift, ch.divider = s.LFSR, s.Use7bitLFSR, s.Shift, s.Divider
	ch.dacEnabled, ch.muted = s.DACEnabled, s.Muted
}

// State is the APU's gob-serializable snapshot (spec §6 Snapshot). The
// PCM sample buffer and host sample-rate conversion state are excluded:
// per spec §6, live audio playback state may be dropped without losing
// functional equivalence after a brief warm-up.
type State struct {
	Enabled           bool
	Channels          [4]ChannelState
	VolLeft, VolRight uint8
	Step              int
	Cycles            int
	NR10, NR11, NR12, NR13, NR14 uint8
	NR21, NR22, NR23, NR24       uint8
	NR30, NR31, NR32, NR33, NR34 uint8
	NR41, NR42, NR43, NR44       uint8
	NR50, NR51, NR52             uint8
	WaveRAM                      [waveRAMSize]uint8
}

// SaveState captures every register and channel's runtime state.
func (a *APU) SaveState() State {
	s := State{
		Enabled: a.enabled, VolLeft: a.volLeft, VolRight: a.volRight,
		Step: a.step, Cycles: a.cycles,
		NR10: a.nr10, NR11: a.nr11, NR12: a.nr12, NR13: a.nr13, NR14: a.nr14,
		NR21: a.nr21, NR22: a.nr22, NR23: a.nr23, NR24: a.nr24,
		NR30: a.nr30, NR31: a.nr31, NR32: a.nr32, NR33: a.nr33, NR34: a.nr34,
		NR41: a.nr41, NR42: a.nr42, NR43: a.nr43, NR44: a.nr44,
		NR50: a.nr50, NR51: a.nr51, NR52: a.nr52,
		WaveRAM: a.waveRAM,
	}
	for i := range a.ch {
		s.Channels[i] = a.ch[i].saveState()
	}
	return s
}

// LoadState restores a previously captured State wholesale, dropping
// any buffered PCM samples (spec §6 excludes live playback state).
func (a *APU) LoadState(s State) {
	a.sampleMu.Lock()
	a.pcmBuffer = a.pcmBuffer[:0]
	a.pcmCursor = 0
	a.sampleMu.Unlock()

	a.enabled, a.volLeft, a.volRight = s.Enabled, s.VolLeft, s.VolRight
	a.step, a.cycles = s.Step, s.Cycles
	a.nr10, a.nr11, a.nr12, a.nr13, a.nr14 = s.NR10, s.NR11, s.NR12, s.NR13, s.NR14
	a.nr21, a.nr22, a.nr23, a.nr24 = s.NR21, s.NR22, s.NR23, s.NR24
	a.nr30, a.nr31, a.nr32, a.nr33, a.nr34 = s.NR30, s.NR31, s.NR32, s.NR33, s.NR34
	a.nr41, a.nr42, a.nr43, a.nr44 = s.NR41, s.NR42, s.NR43, s.NR44
	a.nr50, a.nr51, a.nr52 = s.NR50, s.NR51, s.NR52
	a.waveRAM = s.WaveRAM
	for i := range a.ch {
		a.ch[i].loadState(s.Channels[i])
	}
}
