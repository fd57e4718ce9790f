// Package ext4 implements a read/write client for an ext4-compatible
// on-disk filesystem image over a random-access byte-addressable
// backing store.
package ext4

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SectorSize512 is a sector size of 512 bytes.
const SectorSize512 int64 = 512

// FileSystem is a mounted ext4 image: the parsed superblock and block
// group descriptor table, plus the backing stream they describe.
// Directory and File handles borrow it and issue I/O back through it.
type FileSystem struct {
	file      blockDevice
	sb        *superblock
	gds       *groupDescriptors
	blockSize uint32
	uuid      [16]byte
	// mu serializes the create/allocate protocols; readers assume no
	// concurrent writer.
	mu  sync.Mutex
	log *logrus.Entry
}

// Mount reads the superblock and block group descriptor table from f
// and returns a FileSystem ready to serve reads and, where the image's
// feature set allows, mutations.
func Mount(f blockDevice) (*FileSystem, error) {
	sbBytes := make([]byte, superblockSize)
	if err := readAt(f, sbBytes, superblockOffset); err != nil {
		return nil, wrapErr(KindIO, "read superblock", err)
	}
	sb, err := superblockFromBytes(sbBytes)
	if err != nil {
		return nil, err
	}
	if err := sb.verifyChecksum(); err != nil {
		return nil, err
	}

	blockSize := sb.blockSize()
	groupCount := sb.blockGroupCount()
	descSize := int(sb.descSize())
	is64bit := sb.featureIncompat()&incompatFeature64Bit != 0

	gdBytes := make([]byte, int(groupCount)*descSize)
	gdOffset := int64(superblockOffset) + int64(superblockSize)
	if err := readAt(f, gdBytes, gdOffset); err != nil {
		return nil, wrapErr(KindIO, "read group descriptor table", err)
	}
	gds := groupDescriptorsFromBytes(gdBytes, descSize, is64bit, groupCount)

	uuidVal := sb.uuidBytes()
	fs := &FileSystem{
		file:      f,
		sb:        sb,
		gds:       gds,
		blockSize: blockSize,
		log:       logrus.WithField("component", "ext4"),
	}
	copy(fs.uuid[:], uuidVal[:])

	metadataCsum := fs.metadataCsum()
	for _, gd := range gds.descriptors {
		if err := gd.verifyChecksum(fs.uuid[:], metadataCsum); err != nil {
			return nil, err
		}
	}

	fs.log.WithFields(logrus.Fields{
		"blockSize":  blockSize,
		"groupCount": groupCount,
	}).Debug("mounted ext4 image")

	return fs, nil
}

func (fs *FileSystem) metadataCsum() bool {
	return fs.sb.featureROCompat()&roCompatFeatureMetadataChecksums != 0
}

func (fs *FileSystem) filetypeFeature() bool {
	return fs.sb.featureIncompat()&incompatFeatureDirectoryEntriesRecordFileType != 0
}

func (fs *FileSystem) is64bit() bool {
	return fs.sb.featureIncompat()&incompatFeature64Bit != 0
}

// Features returns the names of the compat/incompat/ro-compat feature
// bits this image's superblock declares. Bits that have no name in
// this package are not listed.
func (fs *FileSystem) Features() []string {
	ff := fs.sb.features()
	return ff.names()
}

// checkMutationSupported gates writers on the image's feature bits:
// any incompat or ro-compat bit outside the set this engine actually
// understands is readable but blocks mutation.
func (fs *FileSystem) checkMutationSupported() error {
	unknownIncompat := fs.sb.featureIncompat() &^ recognizedIncompat
	unknownROCompat := fs.sb.featureROCompat() &^ recognizedROCompat
	if unknownIncompat == 0 && unknownROCompat == 0 {
		return nil
	}
	fs.log.WithFields(logrus.Fields{
		"unknownIncompat": unknownIncompat,
		"unknownROCompat": unknownROCompat,
	}).Warn("image declares unrecognized feature bits; refusing to mutate")
	return wrapErr(KindUnsupported, "image uses unrecognized incompat/ro-compat features; mutation unsupported", nil)
}

func (fs *FileSystem) extentEngine() *extentEngine {
	return newExtentEngine(fs.file, fs.blockSize)
}

// Root returns a Directory handle bound to the root inode (2).
func (fs *FileSystem) Root() (*Directory, error) {
	return fs.openDirInode(inodeNumRoot)
}

// inodePosition locates an inode record on disk:
// bgd[(ino-1)/inodes_per_group].inode_table * block_size +
// ((ino-1) mod inodes_per_group) * inode_size.
func (fs *FileSystem) inodePosition(ino uint32) (int64, error) {
	ipg := fs.sb.inodesPerGroup()
	if ipg == 0 || ino == 0 {
		return 0, wrapErr(KindIO, "invalid inode number", nil)
	}
	groupIdx := (ino - 1) / ipg
	localIdx := (ino - 1) % ipg
	if int(groupIdx) >= len(fs.gds.descriptors) {
		return 0, wrapErr(KindNotFound, "inode's block group does not exist", nil)
	}
	gd := fs.gds.descriptors[groupIdx]
	pos := int64(gd.inodeTableLocation())*int64(fs.blockSize) + int64(localIdx)*int64(fs.sb.inodeSize())
	return pos, nil
}

func (fs *FileSystem) readInode(ino uint32) (*inode, error) {
	pos, err := fs.inodePosition(ino)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, fs.sb.inodeSize())
	if err := readAt(fs.file, buf, pos); err != nil {
		return nil, wrapErr(KindIO, "read inode", err)
	}
	in := inodeFromBytes(buf, ino)
	if err := in.verifyChecksum(fs.uuid[:], fs.metadataCsum()); err != nil {
		return nil, err
	}
	return in, nil
}

func (fs *FileSystem) writeInode(in *inode) error {
	in.setChecksum(fs.uuid[:], fs.sb.inodeSize() > uint16(inodeSizeBase))
	pos, err := fs.inodePosition(in.number)
	if err != nil {
		return err
	}
	return writeAt(fs.file, in.toBytes(), pos)
}

func (fs *FileSystem) groupForBlock(blockNum uint64) int {
	bpg := uint64(fs.sb.blocksPerGroup())
	if bpg == 0 {
		return 0
	}
	return int(blockNum / bpg)
}

func (fs *FileSystem) loadGroup(idx int) (*blockGroup, error) {
	if idx < 0 || idx >= len(fs.gds.descriptors) {
		return nil, wrapErr(KindNoSpace, "block group index out of range", nil)
	}
	gd := fs.gds.descriptors[idx]
	return loadBlockGroup(fs.file, gd, idx, fs.blockSize, fs.sb.blocksPerGroup(), fs.sb.inodesPerGroup())
}

// allocContiguous finds and claims k contiguous free blocks,
// preferring preferredGroup, else scanning groups low-to-high.
// Returns the absolute block index.
func (fs *FileSystem) allocContiguous(k uint32, preferredGroup int) (uint64, error) {
	order := make([]int, 0, len(fs.gds.descriptors))
	if preferredGroup >= 0 && preferredGroup < len(fs.gds.descriptors) {
		order = append(order, preferredGroup)
	}
	for i := range fs.gds.descriptors {
		if i != preferredGroup {
			order = append(order, i)
		}
	}

	for _, idx := range order {
		gd := fs.gds.descriptors[idx]
		if gd.freeBlocksCount() < k {
			continue
		}
		bg, err := fs.loadGroup(idx)
		if err != nil {
			return 0, err
		}
		first, ok := bg.blockBitmap.findRun(uint(k))
		if !ok {
			continue
		}
		for i := uint(0); i < uint(k); i++ {
			bg.blockBitmap.setBit(first + i)
		}
		if err := bg.writeBlockBitmap(fs.file, fs.blockSize); err != nil {
			return 0, err
		}
		gd.setBlockBitmapChecksum(fs.uuid[:], bg.blockBitmap.bytes(), fs.metadataCsum())
		gd.setFreeBlocksCount(gd.freeBlocksCount() - k)
		gd.setChecksum(fs.uuid[:], fs.metadataCsum())
		if err := fs.writeGroupDescriptor(idx); err != nil {
			return 0, err
		}
		fs.sb.setFreeBlocksCount(fs.sb.freeBlocksCount() - uint64(k))
		fs.sb.setChecksum()
		if err := fs.writeSuperblock(); err != nil {
			return 0, err
		}
		return uint64(idx)*uint64(fs.sb.blocksPerGroup()) + uint64(first), nil
	}
	return 0, wrapErr(KindNoSpace, "no contiguous run of blocks available", nil)
}

// allocInode claims the first free inode, scanning groups low to high.
func (fs *FileSystem) allocInode(isDir bool) (uint32, error) {
	for idx, gd := range fs.gds.descriptors {
		if gd.freeInodesCount() == 0 {
			continue
		}
		bg, err := fs.loadGroup(idx)
		if err != nil {
			return 0, err
		}
		local, ok := bg.inodeBitmap.findUnused()
		if !ok {
			continue
		}
		bg.inodeBitmap.setBit(local)
		if err := bg.writeInodeBitmap(fs.file, fs.blockSize); err != nil {
			return 0, err
		}
		gd.setInodeBitmapChecksum(fs.uuid[:], bg.inodeBitmap.bytes(), fs.metadataCsum())
		gd.setFreeInodesCount(gd.freeInodesCount() - 1)
		if isDir {
			gd.setUsedDirsCount(gd.usedDirsCount() + 1)
		}
		if gd.itableUnused() > 0 {
			gd.setItableUnused(gd.itableUnused() - 1)
		}
		gd.setChecksum(fs.uuid[:], fs.metadataCsum())
		if err := fs.writeGroupDescriptor(idx); err != nil {
			return 0, err
		}
		fs.sb.setFreeInodesCount(fs.sb.freeInodesCount() - 1)
		fs.sb.setChecksum()
		if err := fs.writeSuperblock(); err != nil {
			return 0, err
		}
		return uint32(idx)*fs.sb.inodesPerGroup() + uint32(local) + 1, nil
	}
	return 0, wrapErr(KindNoSpace, "no free inodes in any group", nil)
}

// freeContiguous reverses allocContiguous: clear the run's bits and
// restore the group's and superblock's accounting.
func (fs *FileSystem) freeContiguous(first uint64, k uint32) error {
	idx := fs.groupForBlock(first)
	bg, err := fs.loadGroup(idx)
	if err != nil {
		return err
	}
	local := uint(first - uint64(idx)*uint64(fs.sb.blocksPerGroup()))
	for i := uint(0); i < uint(k); i++ {
		bg.blockBitmap.clear(local + i)
	}
	if err := bg.writeBlockBitmap(fs.file, fs.blockSize); err != nil {
		return err
	}
	gd := fs.gds.descriptors[idx]
	gd.setBlockBitmapChecksum(fs.uuid[:], bg.blockBitmap.bytes(), fs.metadataCsum())
	gd.setFreeBlocksCount(gd.freeBlocksCount() + k)
	gd.setChecksum(fs.uuid[:], fs.metadataCsum())
	if err := fs.writeGroupDescriptor(idx); err != nil {
		return err
	}
	fs.sb.setFreeBlocksCount(fs.sb.freeBlocksCount() + uint64(k))
	fs.sb.setChecksum()
	return fs.writeSuperblock()
}

// freeInode reverses allocInode. itable_unused is left alone: freeing
// an inode in the middle of the table does not grow the unused tail.
func (fs *FileSystem) freeInode(ino uint32, isDir bool) error {
	ipg := fs.sb.inodesPerGroup()
	idx := int((ino - 1) / ipg)
	bg, err := fs.loadGroup(idx)
	if err != nil {
		return err
	}
	bg.inodeBitmap.clear(uint((ino - 1) % ipg))
	if err := bg.writeInodeBitmap(fs.file, fs.blockSize); err != nil {
		return err
	}
	gd := fs.gds.descriptors[idx]
	gd.setInodeBitmapChecksum(fs.uuid[:], bg.inodeBitmap.bytes(), fs.metadataCsum())
	gd.setFreeInodesCount(gd.freeInodesCount() + 1)
	if isDir {
		gd.setUsedDirsCount(gd.usedDirsCount() - 1)
	}
	gd.setChecksum(fs.uuid[:], fs.metadataCsum())
	if err := fs.writeGroupDescriptor(idx); err != nil {
		return err
	}
	fs.sb.setFreeInodesCount(fs.sb.freeInodesCount() + 1)
	fs.sb.setChecksum()
	return fs.writeSuperblock()
}

// rollbackCreate releases what a failed create already claimed so a
// NoSpace from a later step leaves no allocation bits behind.
func (fs *FileSystem) rollbackCreate(ino uint32, isDir bool, block uint64, blockAllocated bool) {
	if blockAllocated {
		if err := fs.freeContiguous(block, 1); err != nil {
			fs.log.WithError(err).WithField("block", block).Warn("could not release block after failed create")
		}
	}
	if err := fs.freeInode(ino, isDir); err != nil {
		fs.log.WithError(err).WithField("ino", ino).Warn("could not release inode after failed create")
	}
}

func (fs *FileSystem) writeSuperblock() error {
	return writeAt(fs.file, fs.sb.toBytes(), superblockOffset)
}

func (fs *FileSystem) writeGroupDescriptor(idx int) error {
	gd := fs.gds.descriptors[idx]
	descSize := groupDescriptorSize32
	if gd.is64bit {
		descSize = groupDescriptorSize64
	}
	pos := int64(superblockOffset) + int64(superblockSize) + int64(idx)*int64(descSize)
	return writeAt(fs.file, gd.toBytes(), pos)
}
