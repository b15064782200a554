package bits

import "testing"

func TestGetSet(t *testing.T) {
	var r uint32

	Set(&r, 3)
	if !Get(&r, 3) {
		t.Fatal("expected bit 3 to be set")
	}
	if Get(&r, 4) {
		t.Fatal("expected bit 4 to be clear")
	}

	Clear(&r, 3)
	if Get(&r, 3) {
		t.Fatal("expected bit 3 to be clear after Clear")
	}
}

func TestSetTo(t *testing.T) {
	var r uint32

	SetTo(&r, 5, true)
	if !Get(&r, 5) {
		t.Fatal("expected bit 5 to be set")
	}

	SetTo(&r, 5, false)
	if Get(&r, 5) {
		t.Fatal("expected bit 5 to be clear")
	}
}

func TestGetNSetN(t *testing.T) {
	var r uint32 = 0xFFFFFFFF

	SetN(&r, 4, 0xF, 0x5)
	if got := GetN(&r, 4, 0xF); got != 0x5 {
		t.Fatalf("GetN = %#x, want 0x5", got)
	}
	// bits outside the field must be untouched
	if got := GetN(&r, 0, 0xF); got != 0xF {
		t.Fatalf("bits below the field were disturbed: GetN(0) = %#x", got)
	}
}
