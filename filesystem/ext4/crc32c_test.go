package ext4

import "testing"

func TestCRC32CCheckVector(t *testing.T) {
	// crc32c returns the raw running value used for chaining; finalize
	// with a bit flip to compare against the textbook CRC32C of
	// "123456789".
	got := crc32c(crc32cSeed, []byte("123456789"))
	if raw := uint32(0x1CF96D7C); got != raw {
		t.Errorf("crc32c(0xFFFFFFFF, \"123456789\") = %#x, want %#x", got, raw)
	}
	if want := uint32(0xE3069283); ^got != want {
		t.Errorf("finalized crc32c of \"123456789\" = %#x, want %#x", ^got, want)
	}
}

func TestCrc32cUpdateChaining(t *testing.T) {
	whole := crc32c(crc32cSeed, []byte("123456789"))
	split := crc32cUpdate(crc32cUpdate(crc32cSeed, []byte("1234")), []byte("56789"))
	if whole != split {
		t.Errorf("chained crc32c over two calls = %#x, want %#x (single call)", split, whole)
	}
}
