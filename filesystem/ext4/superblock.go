package ext4

import (
	"github.com/google/uuid"
)

// superblockSize is the fixed, on-disk size of the ext4 superblock
// record, padded with reserved fields out to 1024 bytes.
const superblockSize = 1024

// superblockOffset is the fixed byte offset at which the superblock
// always lives, regardless of block size.
const superblockOffset = 1024

const superblockMagic uint16 = 0xEF53

// feature is the common type backing compat/incompat/ro-compat
// bitmasks; the individual flag constants below are ORed together.
type feature uint32

const (
	compatFeatureDirectoryPreAllocate          feature = 0x1
	compatFeatureImagicInodes                  feature = 0x2
	compatFeatureHasJournal                    feature = 0x4
	compatFeatureExtendedAttributes            feature = 0x8
	compatFeatureReservedGDTBlocksForExpansion feature = 0x10
	compatFeatureDirectoryIndices              feature = 0x20
	compatFeatureLazyBlockGroup                feature = 0x40
	compatFeatureExcludeInode                  feature = 0x80
	compatFeatureExcludeBitmap                 feature = 0x100
	compatFeatureSparseSuperBlockV2            feature = 0x200

	incompatFeatureCompression                      feature = 0x1
	incompatFeatureDirectoryEntriesRecordFileType   feature = 0x2
	incompatFeatureRecoveryNeeded                   feature = 0x4
	incompatFeatureSeparateJournalDevice            feature = 0x8
	incompatFeatureMetaBlockGroups                  feature = 0x10
	incompatFeatureExtents                          feature = 0x40
	incompatFeature64Bit                            feature = 0x80
	incompatFeatureMultipleMountProtection          feature = 0x100
	incompatFeatureFlexBlockGroups                  feature = 0x200
	incompatFeatureExtendedAttributeInodes          feature = 0x400
	incompatFeatureDataInDirectoryEntries           feature = 0x1000
	incompatFeatureMetadataChecksumSeedInSuperblock feature = 0x2000
	incompatFeatureLargeDirectory                   feature = 0x4000
	incompatFeatureDataInInode                      feature = 0x8000
	incompatFeatureEncryptInodes                    feature = 0x10000

	roCompatFeatureSparseSuperblock       feature = 0x1
	roCompatFeatureLargeFile              feature = 0x2
	roCompatFeatureBtreeDirectory         feature = 0x4
	roCompatFeatureHugeFile               feature = 0x8
	roCompatFeatureGDTChecksum            feature = 0x10
	roCompatFeatureLargeSubdirectoryCount feature = 0x20
	roCompatFeatureLargeInodes            feature = 0x40
	roCompatFeatureSnapshot               feature = 0x80
	roCompatFeatureQuota                  feature = 0x100
	roCompatFeatureBigalloc               feature = 0x200
	roCompatFeatureMetadataChecksums      feature = 0x400
	roCompatFeatureReplicas               feature = 0x800
	roCompatFeatureReadOnly               feature = 0x1000
	roCompatFeatureProjectQuotas          feature = 0x2000
)

// misc superblock flag bits (s_flags)
const (
	flagSignedDirectoryHash   uint32 = 0x1
	flagUnsignedDirectoryHash uint32 = 0x2
	flagTestDevCode           uint32 = 0x4
)

// byte offsets into the 1024-byte superblock record, per the standard
// ext4 on-disk layout.
const (
	sbOffInodesCount       = 0x000
	sbOffBlocksCountLo     = 0x004
	sbOffFreeBlocksCountLo = 0x00C
	sbOffFreeInodesCount   = 0x010
	sbOffFirstDataBlock    = 0x014
	sbOffLogBlockSize      = 0x018
	sbOffBlocksPerGroup    = 0x020
	sbOffInodesPerGroup    = 0x028
	sbOffMagic             = 0x038
	sbOffInodeSize         = 0x058
	sbOffFeatureCompat     = 0x05C
	sbOffFeatureIncompat   = 0x060
	sbOffFeatureROCompat   = 0x064
	sbOffUUID              = 0x068
	sbOffDescSize          = 0x0FE
	sbOffBlocksCountHi     = 0x150
	sbOffFreeBlocksCountHi = 0x158
	sbOffWantExtraIsize    = 0x15E
	sbOffChecksum          = 0x3FC
)

// superblock is the in-core form of the ext4 superblock. It keeps the
// raw 1024-byte record around (rather than reconstructing it field by
// field on every store) so that unrecognised/reserved bytes survive a
// load/store round-trip untouched, satisfying the byte-for-byte
// round-trip property.
type superblock struct {
	raw [superblockSize]byte
}

func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) != superblockSize {
		return nil, newErr(KindIO, "superblock must be exactly 1024 bytes")
	}
	sb := &superblock{}
	copy(sb.raw[:], b)
	if sb.magic() != superblockMagic {
		return nil, newErr(KindBadMagic, "superblock magic mismatch")
	}
	return sb, nil
}

func (sb *superblock) toBytes() []byte {
	out := make([]byte, superblockSize)
	copy(out, sb.raw[:])
	return out
}

func (sb *superblock) magic() uint16 { return le16(sb.raw[sbOffMagic:]) }

func (sb *superblock) blockSize() uint32 {
	return 1024 << le32(sb.raw[sbOffLogBlockSize:])
}

func (sb *superblock) inodesCount() uint32 { return le32(sb.raw[sbOffInodesCount:]) }
func (sb *superblock) inodesPerGroup() uint32 { return le32(sb.raw[sbOffInodesPerGroup:]) }
func (sb *superblock) blocksPerGroup() uint32 { return le32(sb.raw[sbOffBlocksPerGroup:]) }
func (sb *superblock) firstDataBlock() uint32 { return le32(sb.raw[sbOffFirstDataBlock:]) }

func (sb *superblock) inodeSize() uint16 { return le16(sb.raw[sbOffInodeSize:]) }

func (sb *superblock) descSize() uint16 {
	fi := sb.featureIncompat()
	if fi&incompatFeature64Bit == 0 {
		return 32
	}
	sz := le16(sb.raw[sbOffDescSize:])
	if sz == 0 {
		return 32
	}
	return sz
}

func (sb *superblock) blocksCount() uint64 {
	return combineLoHi32(le32(sb.raw[sbOffBlocksCountLo:]), le32(sb.raw[sbOffBlocksCountHi:]))
}

func (sb *superblock) freeBlocksCount() uint64 {
	return combineLoHi32(le32(sb.raw[sbOffFreeBlocksCountLo:]), le32(sb.raw[sbOffFreeBlocksCountHi:]))
}

func (sb *superblock) setFreeBlocksCount(v uint64) {
	lo, hi := splitLoHi32(v)
	putLe32(sb.raw[sbOffFreeBlocksCountLo:], lo)
	putLe32(sb.raw[sbOffFreeBlocksCountHi:], hi)
}

func (sb *superblock) freeInodesCount() uint32 { return le32(sb.raw[sbOffFreeInodesCount:]) }
func (sb *superblock) setFreeInodesCount(v uint32) {
	putLe32(sb.raw[sbOffFreeInodesCount:], v)
}

func (sb *superblock) featureCompat() feature { return feature(le32(sb.raw[sbOffFeatureCompat:])) }
func (sb *superblock) featureIncompat() feature { return feature(le32(sb.raw[sbOffFeatureIncompat:])) }
func (sb *superblock) featureROCompat() feature { return feature(le32(sb.raw[sbOffFeatureROCompat:])) }

func (sb *superblock) features() featureFlags {
	return parseFeatureFlags(sb.featureCompat(), sb.featureIncompat(), sb.featureROCompat())
}

func (sb *superblock) uuidBytes() uuid.UUID {
	var u uuid.UUID
	copy(u[:], sb.raw[sbOffUUID:sbOffUUID+16])
	return u
}

func (sb *superblock) wantExtraIsize() uint16 { return le16(sb.raw[sbOffWantExtraIsize:]) }

// blockGroupCount is ⌈blocks_count / blocks_per_group⌉.
func (sb *superblock) blockGroupCount() uint32 {
	bpg := uint64(sb.blocksPerGroup())
	bc := sb.blocksCount()
	if bpg == 0 {
		return 0
	}
	return uint32((bc + bpg - 1) / bpg)
}

// checksum computes this superblock's CRC32C over its own bytes minus
// the trailing 4-byte checksum field, seeded at 0xFFFFFFFF. A
// superblock checksum has no separate identity-bytes stage.
func (sb *superblock) checksum() uint32 {
	return crc32c(crc32cSeed, sb.raw[:sbOffChecksum])
}

func (sb *superblock) storedChecksum() uint32 { return le32(sb.raw[sbOffChecksum:]) }

func (sb *superblock) setChecksum() {
	putLe32(sb.raw[sbOffChecksum:], sb.checksum())
}

// verifyChecksum checks the stored checksum, a no-op success when
// METADATA_CSUM is not enabled on this volume.
func (sb *superblock) verifyChecksum() error {
	if sb.featureROCompat()&roCompatFeatureMetadataChecksums == 0 {
		return nil
	}
	if sb.checksum() != sb.storedChecksum() {
		return wrapErr(KindChecksumMismatch, "superblock checksum mismatch", nil)
	}
	return nil
}
