package video

// spritePriorityBuffer resolves per-pixel sprite ownership for one
// scanline under DMG (non-CGB) drawing-priority rules: the sprite with
// the lowest X coordinate covering a pixel wins; ties go to the lower
// OAM index. Ownership is precomputed per pixel during sprite selection
// instead of sorting sprites, avoiding an allocation-heavy sort per line.
//
// Reference: https://gbdev.io/pandocs/OAM.html#drawing-priority.
type spritePriorityBuffer struct {
	ownerIndex [FramebufferWidth]int
	ownerX     [FramebufferWidth]int
}

func (s *spritePriorityBuffer) Clear() {
	for i := range s.ownerIndex {
		s.ownerIndex[i] = -1
		s.ownerX[i] = 0xFF
	}
}

// TryClaimPixel attempts to claim pixelX for spriteIndex at spriteX,
// returning true if it now owns the pixel.
func (s *spritePriorityBuffer) TryClaimPixel(pixelX, spriteIndex, spriteX int) bool {
	if pixelX < 0 || pixelX >= FramebufferWidth {
		return false
	}

	currentOwner := s.ownerIndex[pixelX]
	if currentOwner == -1 {
		s.ownerIndex[pixelX] = spriteIndex
		s.ownerX[pixelX] = spriteX
		return true
	}

	currentX := s.ownerX[pixelX]
	if spriteX < currentX || (spriteX == currentX && spriteIndex < currentOwner) {
		s.ownerIndex[pixelX] = spriteIndex
		s.ownerX[pixelX] = spriteX
		return true
	}

	return false
}

// Owner returns the sprite index owning pixelX, or -1 if none.
func (s *spritePriorityBuffer) Owner(pixelX int) int {
	if pixelX < 0 || pixelX >= FramebufferWidth {
		return -1
	}
	return s.ownerIndex[pixelX]
}
