// Package debug holds host-facing diagnostics that sit outside the core
// emulation loop: PNG screenshots of the frame buffer for the CLI harness.
package debug

import (
	"fmt"
	"image"
	"log/slog"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/vkeeler/dmgcore/internal/video"
)

// SaveFramePNG encodes the frame buffer as an RGBA PNG. Unlike a
// palette-indexed source, our GBColor already packs full RGBA8888
// (spec §6), so each pixel unpacks directly into the image buffer
// without a per-shade lookup.
func SaveFramePNG(frame *video.FrameBuffer, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, video.FramebufferWidth, video.FramebufferHeight))

	pixels := frame.Slice()
	for i, pixel := range pixels {
		idx := i * 4
		img.Pix[idx] = byte(pixel >> 24)
		img.Pix[idx+1] = byte(pixel >> 16)
		img.Pix[idx+2] = byte(pixel >> 8)
		img.Pix[idx+3] = byte(pixel)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("debug: creating screenshot directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("debug: creating screenshot file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("debug: encoding PNG: %w", err)
	}

	slog.Info("debug: screenshot saved", "path", path)
	return nil
}

// TimestampedPNGPath builds a baseName_<timestamp>.png path inside dir,
// for screenshots triggered interactively rather than at a fixed path.
func TimestampedPNGPath(dir, baseName string) string {
	timestamp := time.Now().Format("20060102_150405")
	return filepath.Join(dir, fmt.Sprintf("%s_%s.png", baseName, timestamp))
}
