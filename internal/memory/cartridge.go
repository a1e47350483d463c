package memory

import (
	"fmt"
	"strings"
	"unicode"
)

// Header field offsets, per the DMG cartridge header layout at 0x100-0x14F.
const (
	titleAddress         = 0x134
	titleLength          = 15
	cartridgeTypeAddress = 0x147
	romSizeAddress       = 0x148
	ramSizeAddress       = 0x149
)

// MBCType identifies which memory bank controller a cartridge expects.
// Only the variants named in scope (NoMBC, MBC1 and its RAM/battery
// variants) are supported; anything else is a construction failure.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC1RAMType
	MBC1RAMBatteryType
	mbcUnsupported
)

// ramBankSizes maps cartridge header byte 0x149 to an external-RAM bank count.
var ramBankSizes = [6]uint8{0, 0, 1, 4, 16, 8}

// Cartridge wraps a raw ROM image and the header fields needed to build
// the right MBC.
type Cartridge struct {
	Data       []byte
	Title      string
	Type       MBCType
	RawType    byte
	ROMBanks   int
	RAMBanks   uint8
	HasBattery bool
}

// NewCartridge builds an empty, MBC-less cartridge: equivalent to powering
// on a DMG with no cartridge inserted.
func NewCartridge() *Cartridge {
	return &Cartridge{Data: make([]byte, 0x8000), Type: NoMBCType, ROMBanks: 2}
}

// NewCartridgeFromData parses a raw ROM image's header and returns a
// Cartridge describing it. It does not validate checksums; an image
// shorter than the 0x150-byte header region or with an unsupported
// cartridge type byte is rejected with a *HeaderError.
func NewCartridgeFromData(data []byte) (*Cartridge, error) {
	if len(data) < 0x150 {
		return nil, &HeaderError{Reason: "ROM is smaller than the 0x150-byte header region"}
	}

	cart := &Cartridge{
		Data:    make([]byte, len(data)),
		Title:   cleanTitle(data[titleAddress : titleAddress+titleLength]),
		RawType: data[cartridgeTypeAddress],
	}
	copy(cart.Data, data)

	romSizeCode := data[romSizeAddress]
	cart.ROMBanks = 2 << romSizeCode

	ramSizeCode := data[ramSizeAddress]
	if int(ramSizeCode) < len(ramBankSizes) {
		cart.RAMBanks = ramBankSizes[ramSizeCode]
	}

	switch cart.RawType {
	case 0x00:
		cart.Type = NoMBCType
	case 0x01:
		cart.Type = MBC1Type
	case 0x02:
		cart.Type = MBC1RAMType
	case 0x03:
		cart.Type = MBC1RAMBatteryType
		cart.HasBattery = true
	default:
		cart.Type = mbcUnsupported
	}

	if cart.Type == mbcUnsupported {
		return nil, &HeaderError{Reason: "unsupported cartridge type", RawType: cart.RawType}
	}

	return cart, nil
}

// HeaderError reports a malformed or unsupported cartridge header; the
// host is expected to treat this as a construction failure (spec §7a).
type HeaderError struct {
	Reason  string
	RawType byte
}

func (e *HeaderError) Error() string {
	if e.RawType != 0 {
		return fmt.Sprintf("cartridge header: %s (type byte 0x%02X)", e.Reason, e.RawType)
	}
	return "cartridge header: " + e.Reason
}

// cleanTitle converts the raw ASCII title bytes into a trimmed string,
// stopping at the first NUL as the spec's read_rom_name contract requires.
func cleanTitle(raw []byte) string {
	end := len(raw)
	for i, b := range raw {
		if b == 0 {
			end = i
			break
		}
	}
	title := strings.TrimSpace(string(raw[:end]))

	cleaned := make([]rune, 0, len(title))
	for _, r := range title {
		if unicode.IsPrint(r) {
			cleaned = append(cleaned, r)
		}
	}
	return string(cleaned)
}
