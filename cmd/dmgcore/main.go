// Command dmgcore is the CLI harness for the emulation core (spec §6):
// it owns the host windowing/input loop, PNG screenshot writing, and
// save-state persistence that the core itself treats as external
// collaborators.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/vkeeler/dmgcore/internal/audio"
	"github.com/vkeeler/dmgcore/internal/backend/terminal"
	"github.com/vkeeler/dmgcore/internal/core"
	"github.com/vkeeler/dmgcore/internal/debug"
	"github.com/vkeeler/dmgcore/internal/disasm"
	"github.com/vkeeler/dmgcore/internal/video"
)

func main() {
	app := cli.NewApp()
	app.Name = "dmgcore"
	app.Description = "A Game Boy (DMG) emulation core"
	app.Usage = "dmgcore [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "boot-rom",
			Usage: "Path to a 256-byte DMG boot ROM (skip-boot entry path used if omitted)",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the emulator without a terminal interface",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "snapshot-path",
			Usage: "Save a PNG screenshot of the last frame to this path in headless mode",
		},
		cli.BoolFlag{
			Name:  "mute",
			Usage: "Disable audio output",
		},
		cli.StringFlag{
			Name:  "save-state",
			Usage: "Path to load/save a whole-machine snapshot alongside the ROM",
		},
	}
	app.Action = run
	app.Commands = []cli.Command{
		{
			Name:      "disassemble",
			Usage:     "Disassemble instructions starting at an address",
			ArgsUsage: "<ROM file>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "boot-rom"},
				cli.IntFlag{Name: "at", Value: 0x0100, Usage: "Starting address"},
				cli.IntFlag{Name: "count", Value: 32, Usage: "Number of instructions to decode"},
			},
			Action: disassemble,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("dmgcore: fatal error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	romPath := c.Args().Get(0)
	if romPath == "" {
		cli.ShowAppHelp(c)
		return errors.New("no ROM path provided")
	}

	emu, err := load(c.String("boot-rom"), romPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := emu.SaveBatteryRAM(); err != nil {
			slog.Error("dmgcore: saving battery RAM", "error", err)
		}
	}()

	if saveStatePath := c.String("save-state"); saveStatePath != "" {
		if data, err := os.ReadFile(saveStatePath); err == nil {
			if err := emu.Restore(data); err != nil {
				slog.Warn("dmgcore: restoring snapshot", "path", saveStatePath, "error", err)
			} else {
				slog.Info("dmgcore: restored snapshot", "path", saveStatePath)
			}
		}
	}

	if c.Bool("headless") {
		return runHeadless(c, emu)
	}
	return runInteractive(c, emu)
}

func load(bootROMPath, romPath string) (*core.Core, error) {
	if bootROMPath != "" {
		return core.Load(bootROMPath, romPath)
	}
	return core.LoadWithoutBootROM(romPath)
}

func runHeadless(c *cli.Context, emu *core.Core) error {
	frames := c.Int("frames")
	if frames <= 0 {
		return errors.New("headless mode requires --frames with a positive value")
	}

	var sink audio.Sink
	if !c.Bool("mute") {
		sink = audio.NewRingSink(audio.DefaultSinkCapacity)
	}

	pixelBuf := make([]uint32, video.FramebufferWidth*video.FramebufferHeight)
	for i := 0; i < frames; i++ {
		emu.Step(pixelBuf, sink, 0)
		if i%60 == 0 {
			slog.Info("dmgcore: frame progress", "completed", i, "total", frames)
		}
	}
	slog.Info("dmgcore: headless run complete", "frames", frames, "rom", emu.ReadROMName())

	if snapshotPath := c.String("snapshot-path"); snapshotPath != "" {
		if err := debug.SaveFramePNG(emu.FrameBuffer(), snapshotPath); err != nil {
			return fmt.Errorf("dmgcore: saving final screenshot: %w", err)
		}
	}

	return saveState(c, emu)
}

func runInteractive(c *cli.Context, emu *core.Core) error {
	var sink audio.Sink
	if !c.Bool("mute") {
		sink = audio.NewRingSink(audio.DefaultSinkCapacity)
	}

	backend, err := terminal.New(emu, sink)
	if err != nil {
		return err
	}
	backend.OnScreenshot = func(fb *video.FrameBuffer) {
		path := debug.TimestampedPNGPath(os.TempDir(), "dmgcore")
		if err := debug.SaveFramePNG(fb, path); err != nil {
			slog.Error("dmgcore: screenshot failed", "error", err)
		}
	}

	if err := backend.Run(); err != nil {
		return err
	}

	return saveState(c, emu)
}

// disassemble decodes a fixed number of instructions starting at an
// address, without running the CPU (spec §9's disassembly debug tool).
func disassemble(c *cli.Context) error {
	romPath := c.Args().Get(0)
	if romPath == "" {
		return errors.New("no ROM path provided")
	}

	emu, err := load(c.String("boot-rom"), romPath)
	if err != nil {
		return err
	}

	start := uint16(c.Int("at"))
	lines := disasm.DisassembleRange(start, c.Int("count"), emu.Bus())
	pc := emu.PC()
	for _, line := range lines {
		fmt.Println(disasm.FormatDisassemblyLine(line, line.Address == pc))
	}
	return nil
}

func saveState(c *cli.Context, emu *core.Core) error {
	saveStatePath := c.String("save-state")
	if saveStatePath == "" {
		return nil
	}
	data, err := emu.Save()
	if err != nil {
		return fmt.Errorf("dmgcore: encoding snapshot: %w", err)
	}
	if err := os.WriteFile(saveStatePath, data, 0o644); err != nil {
		return fmt.Errorf("dmgcore: writing snapshot: %w", err)
	}
	slog.Info("dmgcore: wrote snapshot", "path", saveStatePath)
	return nil
}
