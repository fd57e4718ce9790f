package ext4

import "testing"

func TestBitmapRoundTrip(t *testing.T) {
	raw := []byte{0x01, 0x80, 0x00, 0xFF}
	bm := bitmapFromBytes(raw)

	if !bm.get(0) {
		t.Error("bit 0 should be set (byte 0, lsb)")
	}
	if !bm.get(15) {
		t.Error("bit 15 should be set (byte 1, msb)")
	}
	if bm.get(16) {
		t.Error("bit 16 should be clear")
	}
	for i := uint(24); i < 32; i++ {
		if !bm.get(i) {
			t.Errorf("bit %d should be set (byte 3 = 0xFF)", i)
		}
	}

	back := bm.toBytes(len(raw))
	for i, b := range back {
		if b != raw[i] {
			t.Errorf("toBytes()[%d] = %#x, want %#x", i, b, raw[i])
		}
	}
}

func TestBitmapFindUnused(t *testing.T) {
	bm := newBitmap(16)
	for i := uint(0); i < 5; i++ {
		bm.setBit(i)
	}
	idx, ok := bm.findUnused()
	if !ok || idx != 5 {
		t.Errorf("findUnused() = (%d, %v), want (5, true)", idx, ok)
	}
}

func TestBitmapFindUnusedExhausted(t *testing.T) {
	bm := newBitmap(8)
	for i := uint(0); i < 8; i++ {
		bm.setBit(i)
	}
	if _, ok := bm.findUnused(); ok {
		t.Error("findUnused() on a full bitmap should report false")
	}
}

func TestBitmapFindRun(t *testing.T) {
	bm := newBitmap(32)
	// mark everything used except bits [10,16)
	for i := uint(0); i < 32; i++ {
		if i < 10 || i >= 16 {
			bm.setBit(i)
		}
	}
	start, ok := bm.findRun(6)
	if !ok || start != 10 {
		t.Errorf("findRun(6) = (%d, %v), want (10, true)", start, ok)
	}
	if _, ok := bm.findRun(7); ok {
		t.Error("findRun(7) should fail: only 6 contiguous free bits exist")
	}
}

func TestBitmapSetClear(t *testing.T) {
	bm := newBitmap(8)
	bm.setBit(3)
	if !bm.get(3) {
		t.Fatal("expected bit 3 set")
	}
	bm.clear(3)
	if bm.get(3) {
		t.Fatal("expected bit 3 clear after clear()")
	}
}
