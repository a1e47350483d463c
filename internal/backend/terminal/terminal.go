// Package terminal implements the CLI harness's interactive frontend: a
// tcell-rendered view of the 160x144 frame buffer using shaded block
// characters, with keyboard input translated to a joypad mask. This is
// the host windowing/input loop spec §1 calls an external collaborator,
// bound to the core only through Core.Step and Core.FrameBuffer.
package terminal

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/vkeeler/dmgcore/internal/audio"
	"github.com/vkeeler/dmgcore/internal/core"
	"github.com/vkeeler/dmgcore/internal/video"
)

const (
	frameTime = time.Second / 60
	// keyTimeout bridges the gap between a terminal's key-repeat events
	// and a true press/release stream: a mask bit stays set as long as
	// its key was last seen within this window.
	keyTimeout = 100 * time.Millisecond
)

var shadeChars = []rune{'█', '▓', '▒', '░'}

// Joypad mask bits, matching memory.SetJoypadMask's contract exactly
// (spec §6: DOWN=1, LEFT=2, UP=4, RIGHT=8, START=16, SELECT=32, A=64, B=128).
const (
	maskDown   uint8 = 1 << 0
	maskLeft   uint8 = 1 << 1
	maskUp     uint8 = 1 << 2
	maskRight  uint8 = 1 << 3
	maskStart  uint8 = 1 << 4
	maskSelect uint8 = 1 << 5
	maskA      uint8 = 1 << 6
	maskB      uint8 = 1 << 7
)

// Backend drives a core.Core interactively in a real terminal.
type Backend struct {
	screen tcell.Screen
	core   *core.Core
	sink   audio.Sink

	// OnScreenshot, if set, is called with the current frame buffer when
	// the user presses Ctrl+S (standing in for ⌘+S, which terminals
	// don't deliver as a distinguishable key event).
	OnScreenshot func(*video.FrameBuffer)

	running bool

	mu       sync.Mutex
	lastSeen map[uint8]time.Time
}

// New builds a Backend over an already-loaded Core. sink may be nil if
// the host doesn't want audio output.
func New(c *core.Core, sink audio.Sink) (*Backend, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("terminal: initializing screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("terminal: initializing screen: %w", err)
	}

	return &Backend{
		screen:   screen,
		core:     c,
		sink:     sink,
		running:  true,
		lastSeen: make(map[uint8]time.Time),
	}, nil
}

// Run blocks, driving the emulator at 60Hz and rendering each frame,
// until Esc is pressed or the process receives a termination signal.
func (b *Backend) Run() error {
	defer func() {
		slog.Info("terminal: shutting down")
		b.screen.Fini()
	}()

	b.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	b.screen.Clear()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go b.pollInput()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	pixelBuf := make([]uint32, video.FramebufferWidth*video.FramebufferHeight)

	for b.running {
		select {
		case <-ticker.C:
			b.core.Step(pixelBuf, b.sink, b.currentMask())
			b.render(pixelBuf)
			b.screen.Show()
		case <-signals:
			slog.Info("terminal: received shutdown signal")
			b.running = false
		}
	}

	return nil
}

func (b *Backend) pollInput() {
	for b.running {
		ev := b.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
				b.running = false
				return
			}
			if ev.Key() == tcell.KeyCtrlS {
				if b.OnScreenshot != nil {
					b.OnScreenshot(b.core.FrameBuffer())
				}
				continue
			}
			b.markPressed(maskFor(ev))
		case *tcell.EventResize:
			b.screen.Sync()
		}
	}
}

// maskFor translates a key event to the joypad bit it represents. Bare
// Shift is not a deliverable terminal key event, so Tab stands in for
// RShift/Select, the nearest practically bindable key.
func maskFor(ev *tcell.EventKey) uint8 {
	switch ev.Key() {
	case tcell.KeyUp:
		return maskUp
	case tcell.KeyDown:
		return maskDown
	case tcell.KeyLeft:
		return maskLeft
	case tcell.KeyRight:
		return maskRight
	case tcell.KeyEnter:
		return maskStart
	case tcell.KeyTab:
		return maskSelect
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'z', 'Z':
			return maskA
		case 'x', 'X':
			return maskB
		}
	}
	return 0
}

func (b *Backend) markPressed(mask uint8) {
	if mask == 0 {
		return
	}
	b.mu.Lock()
	b.lastSeen[mask] = time.Now()
	b.mu.Unlock()
}

func (b *Backend) currentMask() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var mask uint8
	for bit, seen := range b.lastSeen {
		if now.Sub(seen) < keyTimeout {
			mask |= bit
		}
	}
	return mask
}

func (b *Backend) render(pixelBuf []uint32) {
	termWidth, termHeight := b.screen.Size()
	if termWidth < video.FramebufferWidth || termHeight < video.FramebufferHeight+1 {
		b.screen.Clear()
		msg := fmt.Sprintf("terminal too small, need at least %dx%d", video.FramebufferWidth, video.FramebufferHeight+1)
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		for i, r := range msg {
			b.screen.SetContent(i, 0, r, nil, style)
		}
		return
	}

	style := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	for y := 0; y < video.FramebufferHeight; y++ {
		rowOffset := y * video.FramebufferWidth
		for x := 0; x < video.FramebufferWidth; x++ {
			shade := shadeIndex(pixelBuf[rowOffset+x])
			b.screen.SetContent(x, y+1, shadeChars[shade], nil, style)
		}
	}
}

func shadeIndex(pixel uint32) int {
	switch video.GBColor(pixel) {
	case video.BlackColor:
		return 0
	case video.DarkGreyColor:
		return 1
	case video.LightGreyColor:
		return 2
	case video.WhiteColor:
		return 3
	default:
		return 0
	}
}
