package ext4

// featureFlags is a structure holding which flags are set - compatible, incompatible and read-only compatible
type featureFlags struct {
	// compatible, incompatible, and compatibleReadOnly feature flags
	directoryPreAllocate             bool
	imagicInodes                     bool
	hasJournal                       bool
	extendedAttributes               bool
	reservedGDTBlocksForExpansion    bool
	directoryIndices                 bool
	lazyBlockGroup                   bool
	excludeInode                     bool
	excludeBitmap                    bool
	sparseSuperBlockV2               bool
	compression                      bool
	directoryEntriesRecordFileType   bool
	recoveryNeeded                   bool
	separateJournalDevice            bool
	metaBlockGroups                  bool
	extents                          bool
	fs64Bit                          bool
	multipleMountProtection          bool
	flexBlockGroups                  bool
	extendedAttributeInodes          bool
	dataInDirectoryEntries           bool
	metadataChecksumSeedInSuperblock bool
	largeDirectory                   bool
	dataInInode                      bool
	encryptInodes                    bool
	sparseSuperblock                 bool
	largeFile                        bool
	btreeDirectory                   bool
	hugeFile                         bool
	gdtChecksum                      bool
	largeSubdirectoryCount           bool
	largeInodes                      bool
	snapshot                         bool
	quota                            bool
	bigalloc                         bool
	metadataChecksums                bool
	replicas                         bool
	readOnly                         bool
	projectQuotas                    bool
}

func parseFeatureFlags(compatFlags feature, incompatFlags feature, roCompatFlags feature) featureFlags {
	f := featureFlags{
		directoryPreAllocate:             compatFlags&compatFeatureDirectoryPreAllocate == compatFeatureDirectoryPreAllocate,
		imagicInodes:                     compatFlags&compatFeatureImagicInodes == compatFeatureImagicInodes,
		hasJournal:                       compatFlags&compatFeatureHasJournal == compatFeatureHasJournal,
		extendedAttributes:               compatFlags&compatFeatureExtendedAttributes == compatFeatureExtendedAttributes,
		reservedGDTBlocksForExpansion:    compatFlags&compatFeatureReservedGDTBlocksForExpansion == compatFeatureReservedGDTBlocksForExpansion,
		directoryIndices:                 compatFlags&compatFeatureDirectoryIndices == compatFeatureDirectoryIndices,
		lazyBlockGroup:                   compatFlags&compatFeatureLazyBlockGroup == compatFeatureLazyBlockGroup,
		excludeInode:                     compatFlags&compatFeatureExcludeInode == compatFeatureExcludeInode,
		excludeBitmap:                    compatFlags&compatFeatureExcludeBitmap == compatFeatureExcludeBitmap,
		sparseSuperBlockV2:               compatFlags&compatFeatureSparseSuperBlockV2 == compatFeatureSparseSuperBlockV2,
		compression:                      incompatFlags&incompatFeatureCompression == incompatFeatureCompression,
		directoryEntriesRecordFileType:   incompatFlags&incompatFeatureDirectoryEntriesRecordFileType == incompatFeatureDirectoryEntriesRecordFileType,
		recoveryNeeded:                   incompatFlags&incompatFeatureRecoveryNeeded == incompatFeatureRecoveryNeeded,
		separateJournalDevice:            incompatFlags&incompatFeatureSeparateJournalDevice == incompatFeatureSeparateJournalDevice,
		metaBlockGroups:                  incompatFlags&incompatFeatureMetaBlockGroups == incompatFeatureMetaBlockGroups,
		extents:                          incompatFlags&incompatFeatureExtents == incompatFeatureExtents,
		fs64Bit:                          incompatFlags&incompatFeature64Bit == incompatFeature64Bit,
		multipleMountProtection:          incompatFlags&incompatFeatureMultipleMountProtection == incompatFeatureMultipleMountProtection,
		flexBlockGroups:                  incompatFlags&incompatFeatureFlexBlockGroups == incompatFeatureFlexBlockGroups,
		extendedAttributeInodes:          incompatFlags&incompatFeatureExtendedAttributeInodes == incompatFeatureExtendedAttributeInodes,
		dataInDirectoryEntries:           incompatFlags&incompatFeatureDataInDirectoryEntries == incompatFeatureDataInDirectoryEntries,
		metadataChecksumSeedInSuperblock: incompatFlags&incompatFeatureMetadataChecksumSeedInSuperblock == incompatFeatureMetadataChecksumSeedInSuperblock,
		largeDirectory:                   incompatFlags&incompatFeatureLargeDirectory == incompatFeatureLargeDirectory,
		dataInInode:                      incompatFlags&incompatFeatureDataInInode == incompatFeatureDataInInode,
		encryptInodes:                    incompatFlags&incompatFeatureEncryptInodes == incompatFeatureEncryptInodes,
		sparseSuperblock:                 roCompatFlags&roCompatFeatureSparseSuperblock == roCompatFeatureSparseSuperblock,
		largeFile:                        roCompatFlags&roCompatFeatureLargeFile == roCompatFeatureLargeFile,
		btreeDirectory:                   roCompatFlags&roCompatFeatureBtreeDirectory == roCompatFeatureBtreeDirectory,
		hugeFile:                         roCompatFlags&roCompatFeatureHugeFile == roCompatFeatureHugeFile,
		gdtChecksum:                      roCompatFlags&roCompatFeatureGDTChecksum == roCompatFeatureGDTChecksum,
		largeSubdirectoryCount:           roCompatFlags&roCompatFeatureLargeSubdirectoryCount == roCompatFeatureLargeSubdirectoryCount,
		largeInodes:                      roCompatFlags&roCompatFeatureLargeInodes == roCompatFeatureLargeInodes,
		snapshot:                         roCompatFlags&roCompatFeatureSnapshot == roCompatFeatureSnapshot,
		quota:                            roCompatFlags&roCompatFeatureQuota == roCompatFeatureQuota,
		bigalloc:                         roCompatFlags&roCompatFeatureBigalloc == roCompatFeatureBigalloc,
		metadataChecksums:                roCompatFlags&roCompatFeatureMetadataChecksums == roCompatFeatureMetadataChecksums,
		replicas:                         roCompatFlags&roCompatFeatureReplicas == roCompatFeatureReplicas,
		readOnly:                         roCompatFlags&roCompatFeatureReadOnly == roCompatFeatureReadOnly,
		projectQuotas:                    roCompatFlags&roCompatFeatureProjectQuotas == roCompatFeatureProjectQuotas,
	}

	return f
}

// names lists the set flags by their on-disk name, sorted the same way
// every call enumerates them (compat, then incompat, then ro-compat),
// for use by callers that just want to show what a mounted image
// declares (the CLI's -features flag).
func (f *featureFlags) names() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(f.directoryPreAllocate, "dir_prealloc")
	add(f.imagicInodes, "imagic_inodes")
	add(f.hasJournal, "has_journal")
	add(f.extendedAttributes, "ext_attr")
	add(f.reservedGDTBlocksForExpansion, "resize_inode")
	add(f.directoryIndices, "dir_index")
	add(f.lazyBlockGroup, "lazy_bg")
	add(f.excludeInode, "exclude_inode")
	add(f.excludeBitmap, "exclude_bitmap")
	add(f.sparseSuperBlockV2, "sparse_super2")
	add(f.compression, "compression")
	add(f.directoryEntriesRecordFileType, "filetype")
	add(f.recoveryNeeded, "recover")
	add(f.separateJournalDevice, "journal_dev")
	add(f.metaBlockGroups, "meta_bg")
	add(f.extents, "extent")
	add(f.fs64Bit, "64bit")
	add(f.multipleMountProtection, "mmp")
	add(f.flexBlockGroups, "flex_bg")
	add(f.extendedAttributeInodes, "ea_inode")
	add(f.dataInDirectoryEntries, "dirdata")
	add(f.metadataChecksumSeedInSuperblock, "csum_seed")
	add(f.largeDirectory, "large_dir")
	add(f.dataInInode, "inline_data")
	add(f.encryptInodes, "encrypt")
	add(f.sparseSuperblock, "sparse_super")
	add(f.largeFile, "large_file")
	add(f.btreeDirectory, "btree_dir")
	add(f.hugeFile, "huge_file")
	add(f.gdtChecksum, "uninit_bg")
	add(f.largeSubdirectoryCount, "large_subdir")
	add(f.largeInodes, "large_inode")
	add(f.snapshot, "snapshot")
	add(f.quota, "quota")
	add(f.bigalloc, "bigalloc")
	add(f.metadataChecksums, "metadata_csum")
	add(f.replicas, "replica")
	add(f.readOnly, "read-only")
	add(f.projectQuotas, "project")
	return out
}

// recognizedIncompat and recognizedROCompat are the incompat/ro-compat
// feature bits this engine actually knows how to honor correctly
// (directory-entry variant selection, descriptor size/physical
// block width, metadata checksums, flex/meta block-group layout, which
// this engine already resolves through each BGD's own stored bitmap
// and inode-table locations rather than assuming a fixed layout). Any
// other incompat/ro-compat bit is readable but not safe to mutate:
// journal recovery, compression, encryption, inline data, quotas,
// snapshots, and MMP are all deliberately out of scope.
const (
	recognizedIncompat = incompatFeatureDirectoryEntriesRecordFileType |
		incompatFeatureExtents |
		incompatFeature64Bit |
		incompatFeatureFlexBlockGroups |
		incompatFeatureMetaBlockGroups

	recognizedROCompat = roCompatFeatureSparseSuperblock |
		roCompatFeatureLargeFile |
		roCompatFeatureHugeFile |
		roCompatFeatureGDTChecksum |
		roCompatFeatureLargeSubdirectoryCount |
		roCompatFeatureLargeInodes |
		roCompatFeatureMetadataChecksums |
		roCompatFeatureReadOnly
)
