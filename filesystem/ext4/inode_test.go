package ext4

import (
	"errors"
	"testing"

	"github.com/go-test/deep"
)

func newTestInode(size int) *inode {
	return inodeFromBytes(make([]byte, size), 42)
}

func TestInodeRoundTrip(t *testing.T) {
	in := newTestInode(256)
	in.setMode(uint16(fileTypeRegularFile) | 0o644)
	in.setUID(1000)
	in.setGID(1000)
	in.setSize(65536)
	in.setGeneration(7)

	reparsed := inodeFromBytes(in.toBytes(), in.number)
	deep.CompareUnexportedFields = true
	if diff := deep.Equal(*in, *reparsed); diff != nil {
		t.Errorf("inode round trip = %v", diff)
	}
}

func TestInodeModeAndFileType(t *testing.T) {
	in := newTestInode(256)
	in.setMode(uint16(fileTypeDirectory) | 0o755)
	if !in.isDir() {
		t.Error("isDir() should be true after setting mode to directory")
	}
	if in.isRegular() {
		t.Error("isRegular() should be false for a directory mode")
	}
	if in.fileType().toDirEntryFileType() != dirFileTypeDirectory {
		t.Errorf("toDirEntryFileType() = %d, want dirFileTypeDirectory", in.fileType().toDirEntryFileType())
	}
}

func TestInodeSizeRoundTrip(t *testing.T) {
	in := newTestInode(256)
	in.setSize(0x1_0000_0001) // exercises both lo and hi halves
	if got := in.size(); got != 0x1_0000_0001 {
		t.Errorf("size() = %#x, want %#x", got, uint64(0x1_0000_0001))
	}
}

func TestInodeUidGidRoundTrip(t *testing.T) {
	in := newTestInode(256)
	in.setUID(0x10001)
	in.setGID(0x20002)
	if in.uid() != 0x10001 {
		t.Errorf("uid() = %#x, want %#x", in.uid(), 0x10001)
	}
	if in.gid() != 0x20002 {
		t.Errorf("gid() = %#x, want %#x", in.gid(), 0x20002)
	}
}

func TestInodeChecksumRoundTrip(t *testing.T) {
	uuidBytes := make([]byte, 16)
	for i := range uuidBytes {
		uuidBytes[i] = byte(i * 7)
	}
	in := newTestInode(256)
	in.setMode(uint16(fileTypeRegularFile) | 0o644)
	in.setGeneration(9999)
	in.setSize(4096)
	in.setChecksum(uuidBytes, true)

	if err := in.verifyChecksum(uuidBytes, true); err != nil {
		t.Errorf("verifyChecksum() after setChecksum() = %v, want nil", err)
	}

	in.setSize(8192)
	if err := in.verifyChecksum(uuidBytes, true); err == nil {
		t.Error("verifyChecksum() should fail once the inode is mutated without recomputing the checksum")
	}
}

func TestInodeChecksumBaseSizeOnlyUsesLowHalf(t *testing.T) {
	uuidBytes := make([]byte, 16)
	in := newTestInode(inodeSizeBase)
	in.setChecksum(uuidBytes, false)
	if err := in.verifyChecksum(uuidBytes, true); err != nil {
		t.Errorf("verifyChecksum() on a base-size inode = %v, want nil", err)
	}
}

func TestInodeExtentTreeRoundTrip(t *testing.T) {
	in := newTestInode(256)
	in.initExtentTree(0, 4, 1000)
	if !in.usesExtents() {
		t.Fatal("initExtentTree should set the uses-extents flag")
	}
	leaves, err := in.getExtents()
	if err != nil {
		t.Fatalf("getExtents: %v", err)
	}
	if len(leaves) != 1 {
		t.Fatalf("len(leaves) = %d, want 1", len(leaves))
	}
	if leaves[0].logicalBlock != 0 || leaves[0].length != 4 || leaves[0].physicalBlock != 1000 {
		t.Errorf("leaf = %+v, want {logicalBlock:0 length:4 physicalBlock:1000}", leaves[0])
	}
}

func TestInodeGetExtentsWithoutFlagIsUnsupported(t *testing.T) {
	in := newTestInode(256)
	if _, err := in.getExtents(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("getExtents() on an inode without the extents flag = %v, want Unsupported", err)
	}
}
