package ext4

import (
	"sort"
)

type inodeFlag uint32
type fileType uint16

const (
	inodeSizeBase          int    = 128
	extentTreeHeaderLength int    = 12
	extentTreeEntryLength  int    = 12
	extentHeaderSignature  uint16 = 0xf30a
	extentTreeMaxDepth     int    = 5
	extentInodeMaxEntries  int    = 4

	inodeFlagSecureDeletion          inodeFlag = 0x1
	inodeFlagPreserveForUndeletion   inodeFlag = 0x2
	inodeFlagCompressed              inodeFlag = 0x4
	inodeFlagSynchronous             inodeFlag = 0x8
	inodeFlagImmutable               inodeFlag = 0x10
	inodeFlagAppendOnly              inodeFlag = 0x20
	inodeFlagNoDump                  inodeFlag = 0x40
	inodeFlagNoAccessTimeUpdate      inodeFlag = 0x80
	inodeFlagDirtyCompressed         inodeFlag = 0x100
	inodeFlagCompressedClusters      inodeFlag = 0x200
	inodeFlagNoCompress              inodeFlag = 0x400
	inodeFlagEncryptedInode          inodeFlag = 0x800
	inodeFlagHashedDirectoryIndexes  inodeFlag = 0x1000
	inodeFlagAFSMagicDirectory       inodeFlag = 0x2000
	inodeFlagAlwaysJournal           inodeFlag = 0x4000
	inodeFlagNoMergeTail             inodeFlag = 0x8000
	inodeFlagSyncDirectoryData       inodeFlag = 0x10000
	inodeFlagTopDirectory            inodeFlag = 0x20000
	inodeFlagHugeFile                inodeFlag = 0x40000
	inodeFlagUsesExtents             inodeFlag = 0x80000
	inodeFlagExtendedAttributes      inodeFlag = 0x200000
	inodeFlagBlocksPastEOF           inodeFlag = 0x400000
	inodeFlagSnapshot                inodeFlag = 0x1000000
	inodeFlagDeletingSnapshot        inodeFlag = 0x4000000
	inodeFlagCompletedSnapshotShrink inodeFlag = 0x8000000
	inodeFlagInlineData              inodeFlag = 0x10000000
	inodeFlagInheritProject          inodeFlag = 0x20000000

	fileTypeFifo            fileType = 0x1000
	fileTypeCharacterDevice fileType = 0x2000
	fileTypeDirectory       fileType = 0x4000
	fileTypeBlockDevice     fileType = 0x6000
	fileTypeRegularFile     fileType = 0x8000
	fileTypeSymbolicLink    fileType = 0xA000
	fileTypeSocket          fileType = 0xC000

	filePermissionsOwnerExecute uint16 = 0x40
	filePermissionsOwnerWrite   uint16 = 0x80
	filePermissionsOwnerRead    uint16 = 0x100
	filePermissionsGroupExecute uint16 = 0x8
	filePermissionsGroupWrite   uint16 = 0x10
	filePermissionsGroupRead    uint16 = 0x20
	filePermissionsOtherExecute uint16 = 0x1
	filePermissionsOtherWrite   uint16 = 0x2
	filePermissionsOtherRead    uint16 = 0x4
)

// special, reserved inode numbers.
const (
	inodeNumBadBlocks   uint32 = 1
	inodeNumRoot        uint32 = 2
	inodeNumUserQuota   uint32 = 3
	inodeNumGroupQuota  uint32 = 4
	inodeNumBootLoader  uint32 = 5
	inodeNumUndeleteDir uint32 = 6
	inodeNumReserved    uint32 = 7
	inodeNumJournal     uint32 = 8
	firstNonReservedIno uint32 = 11
)

// byte offsets within the 128-byte base inode record; fields beyond
// inodeSizeBase only exist when the superblock's inode_size is larger
// (the common case, 256 bytes) and extra_isize says they were written.
const (
	inOffMode        = 0x00
	inOffUidLo       = 0x02
	inOffSizeLo      = 0x04
	inOffATime       = 0x08
	inOffCTime       = 0x0C
	inOffMTime       = 0x10
	inOffDTime       = 0x14
	inOffGidLo       = 0x18
	inOffLinksCount  = 0x1A
	inOffBlocksLo    = 0x1C
	inOffFlags       = 0x20
	inOffOsd1        = 0x24
	inOffBlock       = 0x28 // 60 bytes
	inOffGeneration  = 0x64
	inOffFileACLLo   = 0x68
	inOffSizeHi      = 0x6C
	inOffBlocksHi    = 0x74
	inOffFileACLHi   = 0x76
	inOffUidHi       = 0x78
	inOffGidHi       = 0x7A
	inOffChecksumLo  = 0x7C
	inOffExtraIsize  = 0x80
	inOffChecksumHi  = 0x82
	inOffCTimeExtra  = 0x84
	inOffMTimeExtra  = 0x88
	inOffATimeExtra  = 0x8C
	inOffCrtime      = 0x90
	inOffCrtimeExtra = 0x94
)

// inode is the in-core form of an ext4 inode record. Like superblock
// and groupDescriptor, it is raw-buffer backed so an unmutated
// round-trip is byte-exact.
type inode struct {
	raw    []byte // inodeSize bytes, as read from the image
	number uint32
}

func inodeFromBytes(b []byte, number uint32) *inode {
	raw := make([]byte, len(b))
	copy(raw, b)
	return &inode{raw: raw, number: number}
}

func (in *inode) toBytes() []byte {
	out := make([]byte, len(in.raw))
	copy(out, in.raw)
	return out
}

func (in *inode) mode() uint16 { return le16(in.raw[inOffMode:]) }
func (in *inode) setMode(v uint16) { putLe16(in.raw[inOffMode:], v) }
func (in *inode) flags() inodeFlag { return inodeFlag(le32(in.raw[inOffFlags:])) }
func (in *inode) setFlags(v inodeFlag) { putLe32(in.raw[inOffFlags:], uint32(v)) }

func (in *inode) fileType() fileType { return fileType(in.mode() & 0xF000) }
func (in *inode) isDir() bool { return in.fileType() == fileTypeDirectory }
func (in *inode) isRegular() bool { return in.fileType() == fileTypeRegularFile }
func (in *inode) isSymlink() bool { return in.fileType() == fileTypeSymbolicLink }
func (in *inode) usesExtents() bool { return in.flags()&inodeFlagUsesExtents != 0 }

// dirEntryFileType is the on-disk directory-entry file_type byte: a
// compact 0-7 encoding distinct from the inode mode's upper 4 bits,
// used only when the FILETYPE incompat feature is set.
type dirEntryFileType byte

const (
	dirFileTypeUnknown         dirEntryFileType = 0
	dirFileTypeRegularFile     dirEntryFileType = 1
	dirFileTypeDirectory       dirEntryFileType = 2
	dirFileTypeCharacterDevice dirEntryFileType = 3
	dirFileTypeBlockDevice     dirEntryFileType = 4
	dirFileTypeFIFO            dirEntryFileType = 5
	dirFileTypeSocket          dirEntryFileType = 6
	dirFileTypeSymbolicLink    dirEntryFileType = 7
)

// toDirEntryFileType maps an inode mode's file type bits to the
// compact directory-entry file_type byte.
func (ft fileType) toDirEntryFileType() dirEntryFileType {
	switch ft {
	case fileTypeRegularFile:
		return dirFileTypeRegularFile
	case fileTypeDirectory:
		return dirFileTypeDirectory
	case fileTypeCharacterDevice:
		return dirFileTypeCharacterDevice
	case fileTypeBlockDevice:
		return dirFileTypeBlockDevice
	case fileTypeFifo:
		return dirFileTypeFIFO
	case fileTypeSocket:
		return dirFileTypeSocket
	case fileTypeSymbolicLink:
		return dirFileTypeSymbolicLink
	default:
		return dirFileTypeUnknown
	}
}

func (in *inode) size() uint64 {
	return combineLoHi32(le32(in.raw[inOffSizeLo:]), in.sizeHi())
}

func (in *inode) sizeHi() uint32 {
	if len(in.raw) < inOffSizeHi+4 {
		return 0
	}
	return le32(in.raw[inOffSizeHi:])
}

func (in *inode) setSize(v uint64) {
	lo, hi := splitLoHi32(v)
	putLe32(in.raw[inOffSizeLo:], lo)
	if len(in.raw) >= inOffSizeHi+4 {
		putLe32(in.raw[inOffSizeHi:], hi)
	}
}

func (in *inode) linksCount() uint16 { return le16(in.raw[inOffLinksCount:]) }
func (in *inode) setLinksCount(v uint16) { putLe16(in.raw[inOffLinksCount:], v) }

func (in *inode) generation() uint32 { return le32(in.raw[inOffGeneration:]) }
func (in *inode) setGeneration(v uint32) { putLe32(in.raw[inOffGeneration:], v) }

func (in *inode) blocksLo() uint32 { return le32(in.raw[inOffBlocksLo:]) }
func (in *inode) setBlocksLo(v uint32) { putLe32(in.raw[inOffBlocksLo:], v) }

func (in *inode) uid() uint32 {
	hi := uint16(0)
	if len(in.raw) >= inOffUidHi+2 {
		hi = le16(in.raw[inOffUidHi:])
	}
	return combineLoHi16(le16(in.raw[inOffUidLo:]), hi)
}

func (in *inode) gid() uint32 {
	hi := uint16(0)
	if len(in.raw) >= inOffGidHi+2 {
		hi = le16(in.raw[inOffGidHi:])
	}
	return combineLoHi16(le16(in.raw[inOffGidLo:]), hi)
}

func (in *inode) setUID(v uint32) {
	lo, hi := splitLoHi16(v)
	putLe16(in.raw[inOffUidLo:], lo)
	if len(in.raw) >= inOffUidHi+2 {
		putLe16(in.raw[inOffUidHi:], hi)
	}
}

func (in *inode) setGID(v uint32) {
	lo, hi := splitLoHi16(v)
	putLe16(in.raw[inOffGidLo:], lo)
	if len(in.raw) >= inOffGidHi+2 {
		putLe16(in.raw[inOffGidHi:], hi)
	}
}

func (in *inode) setTimes(atime, ctime, mtime, crtime uint32) {
	putLe32(in.raw[inOffATime:], atime)
	putLe32(in.raw[inOffCTime:], ctime)
	putLe32(in.raw[inOffMTime:], mtime)
	if len(in.raw) >= inOffCrtime+4 {
		putLe32(in.raw[inOffCrtime:], crtime)
	}
}

func (in *inode) extraIsize() uint16 {
	if len(in.raw) < inOffExtraIsize+2 {
		return 0
	}
	return le16(in.raw[inOffExtraIsize:])
}

func (in *inode) setExtraIsize(v uint16) {
	if len(in.raw) >= inOffExtraIsize+2 {
		putLe16(in.raw[inOffExtraIsize:], v)
	}
}

// block returns the inode's embedded 60-byte block/extent-tree area.
func (in *inode) block() []byte { return in.raw[inOffBlock : inOffBlock+60] }

// checksum computes the chained inode checksum: CRC32C(UUID,
// seed=0xFFFFFFFF) -> LE(ino) -> LE(generation) -> full inode buffer
// with both checksum halves zeroed.
func (in *inode) checksum(uuidBytes []byte) uint32 {
	buf := make([]byte, len(in.raw))
	copy(buf, in.raw)
	if len(buf) >= inOffChecksumLo+2 {
		putLe16(buf[inOffChecksumLo:], 0)
	}
	if len(buf) >= inOffChecksumHi+2 {
		putLe16(buf[inOffChecksumHi:], 0)
	}
	var identity [8]byte
	putLe32(identity[0:4], in.number)
	putLe32(identity[4:8], in.generation())
	return chainedChecksum(uuidBytes, identity[:], buf)
}

func (in *inode) storedChecksum() uint32 {
	lo := uint32(0)
	if len(in.raw) >= inOffChecksumLo+2 {
		lo = uint32(le16(in.raw[inOffChecksumLo:]))
	}
	hi := uint32(0)
	if len(in.raw) > inodeSizeBase && len(in.raw) >= inOffChecksumHi+2 {
		hi = uint32(le16(in.raw[inOffChecksumHi:]))
	}
	return lo | hi<<16
}

// setChecksum computes and stores the checksum, splitting low 16 bits
// into osd2.checksum_lo and, only when inode_size > 128, high 16 bits
// into checksum_hi.
func (in *inode) setChecksum(uuidBytes []byte, largeInode bool) {
	sum := in.checksum(uuidBytes)
	if len(in.raw) >= inOffChecksumLo+2 {
		putLe16(in.raw[inOffChecksumLo:], uint16(sum))
	}
	if largeInode && len(in.raw) >= inOffChecksumHi+2 {
		putLe16(in.raw[inOffChecksumHi:], uint16(sum>>16))
	}
}

func (in *inode) verifyChecksum(uuidBytes []byte, metadataCsum bool) error {
	if !metadataCsum {
		return nil
	}
	largeInode := len(in.raw) > inodeSizeBase
	want := in.checksum(uuidBytes)
	got := in.storedChecksum()
	if !largeInode {
		want &= 0xFFFF
	}
	if want != got {
		return wrapErr(KindChecksumMismatch, "inode checksum mismatch", nil)
	}
	return nil
}

// extentLeaf is one leaf entry of an inode's embedded extent tree: a
// run of `length` logical blocks starting at `logicalBlock`, mapped to
// physically contiguous blocks starting at `physicalBlock`.
type extentLeaf struct {
	logicalBlock  uint32
	length        uint16
	physicalBlock uint64
}

// getExtents parses the inode's embedded extent tree root and returns
// its leaf entries sorted by logical block. Only depth 0 is supported;
// any other depth surfaces Unsupported rather than walking child
// blocks.
func (in *inode) getExtents() ([]extentLeaf, error) {
	if !in.usesExtents() {
		return nil, wrapErr(KindUnsupported, "inode does not use extents", nil)
	}
	b := in.block()
	if le16(b[0:2]) != extentHeaderSignature {
		return nil, wrapErr(KindBadMagic, "extent header magic mismatch", nil)
	}
	entries := le16(b[2:4])
	depth := le16(b[6:8])
	if depth != 0 {
		return nil, wrapErr(KindUnsupported, "extent tree depth > 0 not supported", nil)
	}
	leaves := make([]extentLeaf, 0, entries)
	for i := uint16(0); i < entries; i++ {
		off := extentTreeHeaderLength + int(i)*extentTreeEntryLength
		if off+extentTreeEntryLength > len(b) {
			break
		}
		e := b[off : off+extentTreeEntryLength]
		logical := le32(e[0:4])
		length := le16(e[4:6])
		physHi := le16(e[6:8])
		physLo := le32(e[8:12])
		leaves = append(leaves, extentLeaf{
			logicalBlock:  logical,
			length:        length,
			physicalBlock: uint64(physHi)<<32 | uint64(physLo),
		})
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].logicalBlock < leaves[j].logicalBlock })
	return leaves, nil
}

// initExtentTree writes a fresh extent header (entries=1, max=4,
// depth=0) with a single leaf extent into the inode's embedded block
// area. Only a single extent is supported, matching the
// single-block-extent scope of new files and directories.
func (in *inode) initExtentTree(logicalBlock uint32, length uint16, physicalBlock uint64) {
	b := in.block()
	for i := range b {
		b[i] = 0
	}
	putLe16(b[0:2], extentHeaderSignature)
	putLe16(b[2:4], 1) // entries
	putLe16(b[4:6], uint16(extentInodeMaxEntries))
	putLe16(b[6:8], 0) // depth
	putLe32(b[8:12], 0) // generation

	e := b[extentTreeHeaderLength : extentTreeHeaderLength+extentTreeEntryLength]
	putLe32(e[0:4], logicalBlock)
	putLe16(e[4:6], length)
	putLe16(e[6:8], uint16(physicalBlock>>32))
	putLe32(e[8:12], uint32(physicalBlock))

	in.setFlags(in.flags() | inodeFlagUsesExtents)
}
