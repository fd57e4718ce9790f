package ext4

import (
	"testing"

	"github.com/go-test/deep"
)

func buildRawGroupDescriptor32() []byte {
	b := make([]byte, groupDescriptorSize32)
	putLe32(b[gdOffBlockBitmapLo:], 3)
	putLe32(b[gdOffInodeBitmapLo:], 4)
	putLe32(b[gdOffInodeTableLo:], 5)
	putLe16(b[gdOffFreeBlocksLo:], 100)
	putLe16(b[gdOffFreeInodesLo:], 50)
	return b
}

func TestGroupDescriptorLocationsAnd32Bit(t *testing.T) {
	gd := groupDescriptorFromBytes(buildRawGroupDescriptor32(), false, 0)
	if gd.blockBitmapLocation() != 3 {
		t.Errorf("blockBitmapLocation() = %d, want 3", gd.blockBitmapLocation())
	}
	if gd.inodeBitmapLocation() != 4 {
		t.Errorf("inodeBitmapLocation() = %d, want 4", gd.inodeBitmapLocation())
	}
	if gd.inodeTableLocation() != 5 {
		t.Errorf("inodeTableLocation() = %d, want 5", gd.inodeTableLocation())
	}
	if gd.freeBlocksCount() != 100 {
		t.Errorf("freeBlocksCount() = %d, want 100", gd.freeBlocksCount())
	}
	if gd.freeInodesCount() != 50 {
		t.Errorf("freeInodesCount() = %d, want 50", gd.freeInodesCount())
	}
}

func TestGroupDescriptorSetCountsRoundTrip(t *testing.T) {
	gd := groupDescriptorFromBytes(buildRawGroupDescriptor32(), false, 0)
	gd.setFreeBlocksCount(77)
	gd.setFreeInodesCount(12)
	gd.setUsedDirsCount(3)
	if gd.freeBlocksCount() != 77 || gd.freeInodesCount() != 12 || gd.usedDirsCount() != 3 {
		t.Errorf("counts after set = (%d, %d, %d), want (77, 12, 3)",
			gd.freeBlocksCount(), gd.freeInodesCount(), gd.usedDirsCount())
	}
}

func TestGroupDescriptorChecksumRoundTrip(t *testing.T) {
	uuidBytes := make([]byte, 16)
	for i := range uuidBytes {
		uuidBytes[i] = byte(i)
	}
	gd := groupDescriptorFromBytes(buildRawGroupDescriptor32(), false, 2)
	gd.setChecksum(uuidBytes, true)
	if err := gd.verifyChecksum(uuidBytes, true); err != nil {
		t.Errorf("verifyChecksum() after setChecksum() = %v, want nil", err)
	}

	gd.setFreeBlocksCount(999)
	if err := gd.verifyChecksum(uuidBytes, true); err == nil {
		t.Error("verifyChecksum() should fail after mutating a field without recomputing the checksum")
	}
}

func TestGroupDescriptorChecksumNoopWhenDisabled(t *testing.T) {
	uuidBytes := make([]byte, 16)
	gd := groupDescriptorFromBytes(buildRawGroupDescriptor32(), false, 0)
	gd.setChecksum(uuidBytes, false)
	if gd.storedChecksum() != 0 {
		t.Errorf("storedChecksum() = %#x, want 0 when metadataCsum is disabled", gd.storedChecksum())
	}
	if err := gd.verifyChecksum(uuidBytes, false); err != nil {
		t.Errorf("verifyChecksum() with metadataCsum disabled = %v, want nil", err)
	}
}

func TestGroupDescriptorRoundTrip(t *testing.T) {
	gd := groupDescriptorFromBytes(buildRawGroupDescriptor32(), false, 1)
	gd.setFreeBlocksCount(42)
	gd.setFreeInodesCount(7)

	reparsed := groupDescriptorFromBytes(gd.toBytes(), gd.is64bit, gd.number)
	deep.CompareUnexportedFields = true
	if diff := deep.Equal(*gd, *reparsed); diff != nil {
		t.Errorf("group descriptor round trip = %v", diff)
	}
}

func TestGroupDescriptorsFromBytesMultiple(t *testing.T) {
	raw := append(buildRawGroupDescriptor32(), buildRawGroupDescriptor32()...)
	gds := groupDescriptorsFromBytes(raw, groupDescriptorSize32, false, 2)
	if len(gds.descriptors) != 2 {
		t.Fatalf("len(descriptors) = %d, want 2", len(gds.descriptors))
	}
	if gds.descriptors[0].number != 0 || gds.descriptors[1].number != 1 {
		t.Errorf("descriptor numbers = (%d, %d), want (0, 1)", gds.descriptors[0].number, gds.descriptors[1].number)
	}
}
