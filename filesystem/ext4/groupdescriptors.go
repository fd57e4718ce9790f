package ext4

// groupDescriptorSize32 and groupDescriptorSize64 are the two possible
// on-disk record sizes for a block group descriptor, selected by the
// superblock's desc_size field (itself gated on the 64BIT incompat
// feature).
const (
	groupDescriptorSize32 = 32
	groupDescriptorSize64 = 64
)

// byte offsets shared by both the 32-byte and 64-byte group descriptor
// layouts; the *Hi offsets only exist in the 64-byte form.
const (
	gdOffBlockBitmapLo  = 0x00
	gdOffInodeBitmapLo  = 0x04
	gdOffInodeTableLo   = 0x08
	gdOffFreeBlocksLo   = 0x0C
	gdOffFreeInodesLo   = 0x0E
	gdOffUsedDirsLo     = 0x10
	gdOffFlags          = 0x12
	gdOffExcludeBmpLo   = 0x14
	gdOffBlockCsumLo    = 0x18
	gdOffInodeCsumLo    = 0x1A
	gdOffItableUnusedLo = 0x1C
	gdOffChecksum       = 0x1E
	gdOffBlockBitmapHi  = 0x20
	gdOffInodeBitmapHi  = 0x24
	gdOffInodeTableHi   = 0x28
	gdOffFreeBlocksHi   = 0x2C
	gdOffFreeInodesHi   = 0x2E
	gdOffUsedDirsHi     = 0x30
	gdOffItableUnusedHi = 0x32
	gdOffExcludeBmpHi   = 0x34
	gdOffBlockCsumHi    = 0x38
	gdOffInodeCsumHi    = 0x3A
)

type blockGroupFlag uint16

const (
	blockGroupFlagInodesUninitialized      blockGroupFlag = 0x1
	blockGroupFlagBlockBitmapUninitialized blockGroupFlag = 0x2
	blockGroupFlagInodeTableZeroed         blockGroupFlag = 0x4
)

// groupDescriptor is the in-core form of one block group descriptor
// table entry. Like superblock, it keeps its raw bytes so a read/write
// round-trip preserves fields this engine never interprets.
type groupDescriptor struct {
	raw     []byte // groupDescriptorSize32 or groupDescriptorSize64 bytes
	is64bit bool
	number  uint32
}

func groupDescriptorFromBytes(b []byte, is64bit bool, number uint32) *groupDescriptor {
	raw := make([]byte, len(b))
	copy(raw, b)
	return &groupDescriptor{raw: raw, is64bit: is64bit, number: number}
}

func (gd *groupDescriptor) toBytes() []byte {
	out := make([]byte, len(gd.raw))
	copy(out, gd.raw)
	return out
}

func (gd *groupDescriptor) lo32(off int) uint32 { return le32(gd.raw[off:]) }
func (gd *groupDescriptor) hi32(off int) uint32 {
	if !gd.is64bit || len(gd.raw) < off+4 {
		return 0
	}
	return le32(gd.raw[off:])
}

func (gd *groupDescriptor) blockBitmapLocation() uint64 {
	return combineLoHi32(gd.lo32(gdOffBlockBitmapLo), gd.hi32(gdOffBlockBitmapHi))
}
func (gd *groupDescriptor) inodeBitmapLocation() uint64 {
	return combineLoHi32(gd.lo32(gdOffInodeBitmapLo), gd.hi32(gdOffInodeBitmapHi))
}
func (gd *groupDescriptor) inodeTableLocation() uint64 {
	return combineLoHi32(gd.lo32(gdOffInodeTableLo), gd.hi32(gdOffInodeTableHi))
}

func (gd *groupDescriptor) freeBlocksCount() uint32 {
	return combineLoHi16(le16(gd.raw[gdOffFreeBlocksLo:]), uint16(gd.hi32FieldAt(gdOffFreeBlocksHi)))
}

// hi32FieldAt reads a 16-bit high half stored at an offset used only
// in the 64-bit layout; returns 0 when unavailable.
func (gd *groupDescriptor) hi32FieldAt(off int) uint16 {
	if !gd.is64bit || len(gd.raw) < off+2 {
		return 0
	}
	return le16(gd.raw[off:])
}

func (gd *groupDescriptor) setFreeBlocksCount(v uint32) {
	lo, hi := splitLoHi16(v)
	putLe16(gd.raw[gdOffFreeBlocksLo:], lo)
	if gd.is64bit {
		putLe16(gd.raw[gdOffFreeBlocksHi:], hi)
	}
}

func (gd *groupDescriptor) freeInodesCount() uint32 {
	return combineLoHi16(le16(gd.raw[gdOffFreeInodesLo:]), gd.hi32FieldAt(gdOffFreeInodesHi))
}

func (gd *groupDescriptor) setFreeInodesCount(v uint32) {
	lo, hi := splitLoHi16(v)
	putLe16(gd.raw[gdOffFreeInodesLo:], lo)
	if gd.is64bit {
		putLe16(gd.raw[gdOffFreeInodesHi:], hi)
	}
}

func (gd *groupDescriptor) usedDirsCount() uint32 {
	return combineLoHi16(le16(gd.raw[gdOffUsedDirsLo:]), gd.hi32FieldAt(gdOffUsedDirsHi))
}

func (gd *groupDescriptor) setUsedDirsCount(v uint32) {
	lo, hi := splitLoHi16(v)
	putLe16(gd.raw[gdOffUsedDirsLo:], lo)
	if gd.is64bit {
		putLe16(gd.raw[gdOffUsedDirsHi:], hi)
	}
}

func (gd *groupDescriptor) itableUnused() uint32 {
	return combineLoHi16(le16(gd.raw[gdOffItableUnusedLo:]), gd.hi32FieldAt(gdOffItableUnusedHi))
}

func (gd *groupDescriptor) setItableUnused(v uint32) {
	lo, hi := splitLoHi16(v)
	putLe16(gd.raw[gdOffItableUnusedLo:], lo)
	if gd.is64bit {
		putLe16(gd.raw[gdOffItableUnusedHi:], hi)
	}
}

func (gd *groupDescriptor) flags() blockGroupFlag {
	return blockGroupFlag(le16(gd.raw[gdOffFlags:]))
}

// setBlockBitmapChecksum and setInodeBitmapChecksum store
// CRC32C(UUID ‖ bitmapBytes), split low/high 16 bits into the lo/hi
// checksum halves. Both are no-ops when metadataCsum is false.
func (gd *groupDescriptor) setBlockBitmapChecksum(uuidBytes, bitmapBytes []byte, metadataCsum bool) {
	if !metadataCsum {
		return
	}
	sum := crc32c(crc32cSeed, append(append([]byte{}, uuidBytes...), bitmapBytes...))
	putLe16(gd.raw[gdOffBlockCsumLo:], uint16(sum))
	if gd.is64bit {
		putLe16(gd.raw[gdOffBlockCsumHi:], uint16(sum>>16))
	}
}

func (gd *groupDescriptor) setInodeBitmapChecksum(uuidBytes, bitmapBytes []byte, metadataCsum bool) {
	if !metadataCsum {
		return
	}
	sum := crc32c(crc32cSeed, append(append([]byte{}, uuidBytes...), bitmapBytes...))
	putLe16(gd.raw[gdOffInodeCsumLo:], uint16(sum))
	if gd.is64bit {
		putLe16(gd.raw[gdOffInodeCsumHi:], uint16(sum>>16))
	}
}

// checksum is CRC32C(UUID ‖ LE(group-number as u32) ‖
// descriptor-bytes-with-checksum-zeroed), low 16 bits retained.
func (gd *groupDescriptor) checksum(uuidBytes []byte) uint16 {
	buf := make([]byte, len(gd.raw))
	copy(buf, gd.raw)
	putLe16(buf[gdOffChecksum:], 0)
	var groupNumBytes [4]byte
	putLe32(groupNumBytes[:], gd.number)
	sum := chainedChecksum(uuidBytes, groupNumBytes[:], buf)
	return uint16(sum)
}

func (gd *groupDescriptor) storedChecksum() uint16 { return le16(gd.raw[gdOffChecksum:]) }

func (gd *groupDescriptor) setChecksum(uuidBytes []byte, metadataCsum bool) {
	if !metadataCsum {
		return
	}
	putLe16(gd.raw[gdOffChecksum:], gd.checksum(uuidBytes))
}

func (gd *groupDescriptor) verifyChecksum(uuidBytes []byte, metadataCsum bool) error {
	if !metadataCsum {
		return nil
	}
	if gd.checksum(uuidBytes) != gd.storedChecksum() {
		return wrapErr(KindChecksumMismatch, "block group descriptor checksum mismatch", nil)
	}
	return nil
}

// groupDescriptors is the in-memory table of all block group
// descriptors, read once at mount.
type groupDescriptors struct {
	descriptors []*groupDescriptor
}

func groupDescriptorsFromBytes(b []byte, descSize int, is64bit bool, count uint32) *groupDescriptors {
	gds := &groupDescriptors{descriptors: make([]*groupDescriptor, 0, count)}
	for i := uint32(0); i < count; i++ {
		start := int(i) * descSize
		end := start + descSize
		if end > len(b) {
			break
		}
		gds.descriptors = append(gds.descriptors, groupDescriptorFromBytes(b[start:end], is64bit, i))
	}
	return gds
}

func (gds *groupDescriptors) toBytes() []byte {
	out := make([]byte, 0, len(gds.descriptors)*groupDescriptorSize64)
	for _, gd := range gds.descriptors {
		out = append(out, gd.toBytes()...)
	}
	return out
}
