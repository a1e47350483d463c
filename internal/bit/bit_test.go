package bit

import "testing"

func TestCombine(t *testing.T) {
	if got := Combine(0xAB, 0xCD); got != 0xABCD {
		t.Errorf("Combine(0xAB, 0xCD) = 0x%04X, want 0xABCD", got)
	}
}

func TestHighLow(t *testing.T) {
	if High(0xABCD) != 0xAB {
		t.Errorf("High(0xABCD) = 0x%02X, want 0xAB", High(0xABCD))
	}
	if Low(0xABCD) != 0xCD {
		t.Errorf("Low(0xABCD) = 0x%02X, want 0xCD", Low(0xABCD))
	}
}

func TestSetResetIsSet(t *testing.T) {
	var v uint8
	v = Set(3, v)
	if !IsSet(3, v) {
		t.Errorf("expected bit 3 set")
	}
	v = Reset(3, v)
	if IsSet(3, v) {
		t.Errorf("expected bit 3 reset")
	}
}

func TestSetTo(t *testing.T) {
	v := SetTo(0, 0x00, true)
	if v != 0x01 {
		t.Errorf("SetTo true = 0x%02X, want 0x01", v)
	}
	v = SetTo(0, v, false)
	if v != 0x00 {
		t.Errorf("SetTo false = 0x%02X, want 0x00", v)
	}
}

func TestExtractBits(t *testing.T) {
	if got := ExtractBits(0b11010110, 6, 4); got != 0b101 {
		t.Errorf("ExtractBits(0b11010110, 6, 4) = 0b%b, want 0b101", got)
	}
	if got := ExtractBits(0xFF, 0, 0); got != 1 {
		t.Errorf("ExtractBits(0xFF, 0, 0) = %d, want 1", got)
	}
}
