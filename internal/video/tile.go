package video

import "github.com/vkeeler/dmgcore/internal/bit"

// TileRow is one 8-pixel row of a tile, stored in the DMG's bit-plane
// format: the color id of pixel x is (high-bit x)<<1 | (low-bit x), with
// bit 7 of each byte holding the leftmost pixel.
//
// Reference: https://gbdev.io/pandocs/Tile_Data.html
type TileRow struct {
	Low, High byte
}

// ColorID returns the 2-bit color id (0-3) at pixelX (0=leftmost, 7=rightmost).
func (t TileRow) ColorID(pixelX int) byte {
	bitIndex := uint8(7 - pixelX)
	var id byte
	if bit.IsSet(bitIndex, t.Low) {
		id |= 1
	}
	if bit.IsSet(bitIndex, t.High) {
		id |= 2
	}
	return id
}

// ColorIDFlipped is ColorID with the row read right-to-left, for sprites
// drawn with the X-flip attribute.
func (t TileRow) ColorIDFlipped(pixelX int) byte {
	return t.ColorID(7 - pixelX)
}

// FetchTileRow reads one tile row (2 bytes) from bus at rowAddr.
func FetchTileRow(bus interface{ Read(uint16) byte }, rowAddr uint16) TileRow {
	return TileRow{Low: bus.Read(rowAddr), High: bus.Read(rowAddr + 1)}
}

// BGTileDataAddr resolves a background/window tile map entry to the VRAM
// address of its row, honoring LCDC's signed/unsigned tile-data select
// (unsigned index from base 0x8000, or the index read as int8 relative
// to base 0x9000).
func BGTileDataAddr(tilesBase uint16, signedTileSet bool, tileValue byte, rowInTile int) uint16 {
	if signedTileSet {
		offset := int(int8(tileValue)) * 16
		return uint16(int(tilesBase) + offset + rowInTile*2)
	}
	return tilesBase + uint16(int(tileValue)*16+rowInTile*2)
}
