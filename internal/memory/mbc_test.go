package memory

import "testing"

func TestMBC1_FixedBank(t *testing.T) {
	rom := make([]uint8, 0x8000)
	for i := range rom {
		rom[i] = uint8(i & 0xFF)
	}
	mbc := NewMBC1(rom, 0)

	for address := uint16(0x0000); address < 0x4000; address++ {
		got := mbc.Read(address)
		want := uint8(address & 0xFF)
		if got != want {
			t.Fatalf("Read(0x%04X) = 0x%02X; want 0x%02X", address, got, want)
		}
	}
}

func TestMBC1_ROMBankSwitching(t *testing.T) {
	rom := make([]uint8, 0x10000) // 4 banks of 16KB
	for i := range rom {
		rom[i] = uint8(i / 0x4000)
	}
	mbc := NewMBC1(rom, 0)

	tests := []struct {
		name    string
		bank    uint8
		wantVal uint8
	}{
		{"default bank is 1", 1, 1},
		{"switch to bank 2", 2, 2},
		{"switch to bank 3", 3, 3},
		{"bank 0 becomes bank 1", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mbc.Write(0x2100, tt.bank)
			got := mbc.Read(0x4000)
			if got != tt.wantVal {
				t.Errorf("Read(0x4000) after selecting bank %d = %d; want %d", tt.bank, got, tt.wantVal)
			}
		})
	}
}

func TestMBC1_RAMEnableAndBanking(t *testing.T) {
	rom := make([]uint8, 0x4000)
	mbc := NewMBC1(rom, 4)

	// RAM disabled by default
	if got := mbc.Read(0xA000); got != 0xFF {
		t.Errorf("Read(0xA000) with RAM disabled = 0x%02X; want 0xFF", got)
	}

	mbc.Write(0x0000, 0x0A) // enable RAM
	mbc.Write(0xA000, 0x42)
	if got := mbc.Read(0xA000); got != 0x42 {
		t.Errorf("Read(0xA000) = 0x%02X; want 0x42", got)
	}

	// switch to RAM banking mode and select bank 2
	mbc.Write(0x6000, 0x01)
	mbc.Write(0x4000, 0x02)
	mbc.Write(0xA000, 0x99)
	if got := mbc.Read(0xA000); got != 0x99 {
		t.Errorf("bank 2 Read(0xA000) = 0x%02X; want 0x99", got)
	}

	// bank 0's value should be undisturbed
	mbc.Write(0x4000, 0x00)
	if got := mbc.Read(0xA000); got != 0x42 {
		t.Errorf("bank 0 Read(0xA000) = 0x%02X; want 0x42", got)
	}
}

func TestNoMBC(t *testing.T) {
	rom := make([]uint8, 0x8000)
	rom[0x1234] = 0x77
	mbc := NewNoMBC(rom)

	if got := mbc.Read(0x1234); got != 0x77 {
		t.Errorf("Read(0x1234) = 0x%02X; want 0x77", got)
	}

	mbc.Write(0x1234, 0xAA) // writes to a NoMBC cartridge are ignored
	if got := mbc.Read(0x1234); got != 0x77 {
		t.Errorf("write to NoMBC mutated ROM: Read(0x1234) = 0x%02X", got)
	}
}
