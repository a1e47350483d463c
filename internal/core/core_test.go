package core

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// syntheticROM builds a minimal 32KB NoMBC cartridge image with a given
// title and an RST 0x00 (0xC7) loop planted at the entry point, enough
// to drive CPU/PPU/timer ticking without needing a real game ROM.
func syntheticROM(title string) []byte {
	data := make([]byte, 0x8000)
	copy(data[0x134:], title)
	data[0x147] = 0x00 // NoMBC
	data[0x148] = 0x00 // 2 ROM banks (32KB)
	data[0x149] = 0x00 // no external RAM
	data[0x100] = 0xC7 // RST 0x00
	return data
}

func writeTempROM(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing temp ROM: %v", err)
	}
	return path
}

func TestLoadWithoutBootROM_SeedsPostBootState(t *testing.T) {
	romPath := writeTempROM(t, "game.gb", syntheticROM("TESTGAME"))

	c, err := LoadWithoutBootROM(romPath)
	assert.NoError(t, err)
	assert.Equal(t, "TESTGAME", c.ReadROMName())
	assert.Equal(t, uint16(0x0100), c.cpu.PC())
	assert.Equal(t, uint16(0xFFFE), c.cpu.SP())
}

func TestLoadWithoutBootROM_EmptyCartridge(t *testing.T) {
	c, err := LoadWithoutBootROM("")
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x0100), c.cpu.PC())
}

func TestLoad_MissingBootROM(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.bin"), "")
	assert.Error(t, err)
}

func TestLoad_RejectsWrongSizedBootROM(t *testing.T) {
	path := writeTempROM(t, "bootrom.bin", make([]byte, 100))
	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestStep_AccumulatesExactlyOneFrameOfCycles(t *testing.T) {
	romPath := writeTempROM(t, "game.gb", syntheticROM("LOOP"))
	c, err := LoadWithoutBootROM(romPath)
	assert.NoError(t, err)

	pixelBuf := make([]uint32, 160*144)
	before := c.cpu.Cycles()
	frameReady := c.Step(pixelBuf, nil, 0)
	after := c.cpu.Cycles()

	assert.True(t, frameReady)
	assert.Equal(t, uint64(70224), after-before)
}

func TestStep_CopiesFrameBufferIntoPixelBuf(t *testing.T) {
	romPath := writeTempROM(t, "game.gb", syntheticROM("LOOP"))
	c, err := LoadWithoutBootROM(romPath)
	assert.NoError(t, err)

	pixelBuf := make([]uint32, 160*144)
	c.Step(pixelBuf, nil, 0)

	assert.Equal(t, c.FrameBuffer().Slice(), pixelBuf)
}

func TestSaveRestore_RoundTripsCPUState(t *testing.T) {
	romPath := writeTempROM(t, "game.gb", syntheticROM("LOOP"))
	c, err := LoadWithoutBootROM(romPath)
	assert.NoError(t, err)

	pixelBuf := make([]uint32, 160*144)
	c.Step(pixelBuf, nil, 0)

	snapshot, err := c.Save()
	assert.NoError(t, err)

	c.Step(pixelBuf, nil, 0)
	assert.NotEqual(t, c.cpu.Cycles(), uint64(70224))

	assert.NoError(t, c.Restore(snapshot))
	assert.Equal(t, uint64(70224), c.cpu.Cycles())

	roundTrip, err := c.Save()
	assert.NoError(t, err)
	assert.Equal(t, snapshot, roundTrip)
}

func TestRestore_VersionMismatchIsIgnoredNotAnError(t *testing.T) {
	romPath := writeTempROM(t, "game.gb", syntheticROM("LOOP"))
	c, err := LoadWithoutBootROM(romPath)
	assert.NoError(t, err)

	pcBefore := c.cpu.PC()

	stale := State{
		Version: snapshotVersion + 1,
		CPU:     c.cpu.SaveState(),
		PPU:     c.ppu.SaveState(),
		Memory:  c.mmu.SaveState(),
		Audio:   c.mmu.APU.SaveState(),
	}
	stale.CPU.PC = 0xBEEF

	var buf bytes.Buffer
	assert.NoError(t, gob.NewEncoder(&buf).Encode(stale))

	assert.NoError(t, c.Restore(buf.Bytes()))
	assert.Equal(t, pcBefore, c.cpu.PC())
}

func TestBatteryRAM_RoundTripsThroughSavFile(t *testing.T) {
	rom := syntheticROM("BATTGAME")
	rom[0x147] = 0x03 // MBC1+RAM+BATTERY
	rom[0x149] = 0x02 // 1 bank of 8KB RAM
	romPath := writeTempROM(t, "batt.gb", rom)

	c, err := LoadWithoutBootROM(romPath)
	assert.NoError(t, err)

	ram := c.mmu.BatteryRAM()
	assert.NotNil(t, ram)
	for i := range ram {
		ram[i] = 0x42
	}

	assert.NoError(t, c.SaveBatteryRAM())

	c2, err := LoadWithoutBootROM(romPath)
	assert.NoError(t, err)
	ram2 := c2.mmu.BatteryRAM()
	for _, b := range ram2 {
		assert.Equal(t, byte(0x42), b)
	}
}
