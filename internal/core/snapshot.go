package core

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"

	"github.com/vkeeler/dmgcore/internal/audio"
	"github.com/vkeeler/dmgcore/internal/cpu"
	"github.com/vkeeler/dmgcore/internal/memory"
	"github.com/vkeeler/dmgcore/internal/video"
)

// snapshotVersion is bumped whenever the State layout changes in a way
// that would make an old snapshot unsafe to load.
const snapshotVersion = 1

func init() {
	gob.Register(State{})
	gob.Register(cpu.State{})
	gob.Register(video.State{})
	gob.Register(memory.State{})
	gob.Register(audio.State{})
}

// State is the whole-machine gob-serializable snapshot (spec §6
// Snapshot): every component's own State, wrapped with a version tag.
// The APU's live PCM buffer and the boot-ROM image are intentionally
// excluded, per spec §6's "may be excluded... without loss of functional
// equivalence after a brief warm-up."
type State struct {
	Version uint16
	CPU     cpu.State
	PPU     video.State
	Memory  memory.State
	Audio   audio.State
}

// Save captures the full machine state and gob-encodes it.
func (c *Core) Save() ([]byte, error) {
	state := State{
		Version: snapshotVersion,
		CPU:     c.cpu.SaveState(),
		PPU:     c.ppu.SaveState(),
		Memory:  c.mmu.SaveState(),
		Audio:   c.mmu.APU.SaveState(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("core: encoding snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the Core's live state wholesale from a previously
// captured snapshot. A version mismatch is not an error: per spec §7d
// it is treated as "no snapshot," logged, and the Core is left exactly
// as it was (a fresh Core, if this is called right after Load).
func (c *Core) Restore(data []byte) error {
	var state State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("core: decoding snapshot: %w", err)
	}

	if state.Version != snapshotVersion {
		slog.Warn("core: snapshot version mismatch, ignoring", "got", state.Version, "want", snapshotVersion)
		return nil
	}

	c.cpu.LoadState(state.CPU)
	c.ppu.LoadState(state.PPU)
	c.mmu.LoadState(state.Memory)
	c.mmu.APU.LoadState(state.Audio)
	return nil
}
