package ext4

import (
	"testing"

	"github.com/go-test/deep"
)

// buildRawSuperblock returns a minimal valid 1024-byte superblock
// record with magic, block size, and group geometry set.
func buildRawSuperblock() []byte {
	b := make([]byte, superblockSize)
	putLe32(b[sbOffInodesCount:], 128)
	putLe32(b[sbOffBlocksCountLo:], 1024)
	putLe32(b[sbOffFreeBlocksCountLo:], 900)
	putLe32(b[sbOffFreeInodesCount:], 100)
	putLe32(b[sbOffFirstDataBlock:], 1)
	putLe32(b[sbOffLogBlockSize:], 0) // 1024 << 0 = 1024
	putLe32(b[sbOffBlocksPerGroup:], 512)
	putLe32(b[sbOffInodesPerGroup:], 64)
	putLe16(b[sbOffMagic:], superblockMagic)
	putLe16(b[sbOffInodeSize:], 256)
	putLe32(b[sbOffFeatureROCompat:], uint32(roCompatFeatureMetadataChecksums))
	return b
}

func TestSuperblockFromBytesRejectsWrongSize(t *testing.T) {
	if _, err := superblockFromBytes(make([]byte, 100)); err == nil {
		t.Fatal("expected an error for a non-1024-byte buffer")
	}
}

func TestSuperblockFromBytesRejectsBadMagic(t *testing.T) {
	b := buildRawSuperblock()
	putLe16(b[sbOffMagic:], 0)
	if _, err := superblockFromBytes(b); err == nil {
		t.Fatal("expected an error for a bad magic number")
	}
}

func TestSuperblockRoundTripByteExact(t *testing.T) {
	raw := buildRawSuperblock()
	sb, err := superblockFromBytes(raw)
	if err != nil {
		t.Fatalf("superblockFromBytes: %v", err)
	}
	out := sb.toBytes()
	if len(out) != len(raw) {
		t.Fatalf("toBytes() length = %d, want %d", len(out), len(raw))
	}

	reparsed, err := superblockFromBytes(out)
	if err != nil {
		t.Fatalf("superblockFromBytes(toBytes()): %v", err)
	}
	deep.CompareUnexportedFields = true
	if diff := deep.Equal(*sb, *reparsed); diff != nil {
		t.Errorf("superblock round trip = %v", diff)
	}
}

func TestSuperblockDerivedFields(t *testing.T) {
	sb, err := superblockFromBytes(buildRawSuperblock())
	if err != nil {
		t.Fatal(err)
	}
	if sb.blockSize() != 1024 {
		t.Errorf("blockSize() = %d, want 1024", sb.blockSize())
	}
	if sb.blockGroupCount() != 2 {
		t.Errorf("blockGroupCount() = %d, want 2 (ceil(1024/512))", sb.blockGroupCount())
	}
	if sb.freeBlocksCount() != 900 {
		t.Errorf("freeBlocksCount() = %d, want 900", sb.freeBlocksCount())
	}
}

func TestSuperblockChecksumRoundTrip(t *testing.T) {
	sb, err := superblockFromBytes(buildRawSuperblock())
	if err != nil {
		t.Fatal(err)
	}
	sb.setChecksum()
	if err := sb.verifyChecksum(); err != nil {
		t.Errorf("verifyChecksum() after setChecksum() = %v, want nil", err)
	}

	// flipping any other byte must invalidate the checksum.
	sb.raw[sbOffFreeInodesCount] ^= 0xFF
	if err := sb.verifyChecksum(); err == nil {
		t.Error("verifyChecksum() should fail after mutating a checksummed field")
	}
}

func TestSuperblockSetFreeBlocksAndInodesCount(t *testing.T) {
	sb, err := superblockFromBytes(buildRawSuperblock())
	if err != nil {
		t.Fatal(err)
	}
	sb.setFreeBlocksCount(12345)
	if sb.freeBlocksCount() != 12345 {
		t.Errorf("freeBlocksCount() after set = %d, want 12345", sb.freeBlocksCount())
	}
	sb.setFreeInodesCount(42)
	if sb.freeInodesCount() != 42 {
		t.Errorf("freeInodesCount() after set = %d, want 42", sb.freeInodesCount())
	}
}
