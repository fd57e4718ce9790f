package ext4

import (
	"errors"
	"strings"
)

// DirEntryInfo is one entry yielded by Directory.Iterate: a name, the
// inode number it points at, and the file type byte when the FILETYPE
// feature is enabled.
type DirEntryInfo struct {
	Name     string
	Inode    uint32
	FileType byte
}

// Directory is a handle bound to a directory inode. It borrows the
// mounted FileSystem and carries a snapshot of its own inode plus
// inode number.
type Directory struct {
	fs  *FileSystem
	ino uint32
	in  *inode
}

func (fs *FileSystem) openDirInode(ino uint32) (*Directory, error) {
	in, err := fs.readInode(ino)
	if err != nil {
		return nil, err
	}
	if in.isSymlink() {
		return nil, wrapErr(KindUnsupported, "symlink traversal is not supported", nil)
	}
	if !in.isDir() {
		return nil, wrapErr(KindNotFound, "inode is not a directory", nil)
	}
	return &Directory{fs: fs, ino: ino, in: in}, nil
}

// singleExtent returns the directory's sole extent, enforcing the
// single-block-extent precondition the add-entry and create protocols
// rely on.
func (d *Directory) singleExtent() (extentLeaf, error) {
	leaves, err := d.in.getExtents()
	if err != nil {
		return extentLeaf{}, err
	}
	if len(leaves) != 1 || leaves[0].length != 1 {
		return extentLeaf{}, wrapErr(KindUnsupported, "directory mutation requires a single single-block extent", nil)
	}
	return leaves[0], nil
}

// readBlock reads every extent's entries in logical order, stopping
// at the tail. It does not enforce the single-extent precondition;
// that is only required for mutation, not iteration.
func (d *Directory) readBlock() ([]*directoryEntry, *directoryTail, error) {
	if d.in.flags()&inodeFlagHashedDirectoryIndexes != 0 {
		return nil, nil, wrapErr(KindUnsupported, "htree-indexed directories are not supported", nil)
	}
	leaves, err := d.in.getExtents()
	if err != nil {
		return nil, nil, err
	}
	ee := d.fs.extentEngine()
	filetypeFeature := d.fs.filetypeFeature()
	var entries []*directoryEntry
	var tail *directoryTail
	for _, leaf := range leaves {
		extentBytes := uint64(leaf.length) * uint64(d.fs.blockSize)
		var offset uint64
		for offset < extentBytes {
			before := offset
			entry, ok, err := ee.readDirEntry(leaf.physicalBlock, extentBytes, filetypeFeature, &offset)
			if err != nil {
				return nil, nil, err
			}
			if !ok && entry == nil {
				if offset == before {
					break
				}
				tailBytes := make([]byte, dirTailLength)
				if err := ee.readBytes(leaf.physicalBlock, before, tailBytes); err == nil {
					if t, isTail := directoryTailFromBytes(tailBytes); isTail {
						tail = t
					}
				}
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, tail, nil
}

// Iterate walks the directory's entries in on-disk order, verifying
// the block's tail checksum when METADATA_CSUM is enabled.
func (d *Directory) Iterate() ([]DirEntryInfo, error) {
	entries, tail, err := d.readBlock()
	if err != nil {
		return nil, err
	}
	// tail verification covers the single-block layout this engine
	// maintains; larger directories are readable but not re-verified.
	if d.fs.metadataCsum() && tail != nil {
		if _, serr := d.singleExtent(); serr == nil {
			if err := d.verifyTailChecksum(entries, tail); err != nil {
				return nil, err
			}
		}
	}
	out := make([]DirEntryInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntryInfo{Name: e.name, Inode: e.inode, FileType: byte(e.fileType)})
	}
	return out, nil
}

func (d *Directory) verifyTailChecksum(entries []*directoryEntry, tail *directoryTail) error {
	blockMinusTail := serializeEntries(entries, d.fs.filetypeFeature(), int(d.fs.blockSize)-dirTailLength)
	got := computeDirBlockChecksum(d.fs.uuid[:], d.ino, d.in.generation(), blockMinusTail)
	if got != tail.checksum {
		return wrapErr(KindChecksumMismatch, "directory block checksum mismatch", nil)
	}
	return nil
}

// serializeEntries tiles entries back into a fixed-size byte buffer,
// each at its own recorded rec_len, zero-padding within each entry's
// rec_len exactly as the last entry is padded on disk.
func serializeEntries(entries []*directoryEntry, filetypeFeature bool, size int) []byte {
	out := make([]byte, size)
	var off int
	for _, e := range entries {
		b := e.toBytes(filetypeFeature)
		copy(out[off:], b)
		off += int(e.recLen)
	}
	return out
}

// Find performs a linear first-match scan.
func (d *Directory) Find(name string) (*DirEntryInfo, error) {
	entries, err := d.Iterate()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return &e, nil
		}
	}
	return nil, wrapErr(KindNotFound, "no such directory entry: "+name, nil)
}

// splitPath peels the first path component off: trim leading/trailing
// slashes, split on the first remaining slash.
func splitPath(p string) (head string, rest string, hasRest bool) {
	trimmed := strings.Trim(p, "/")
	idx := strings.Index(trimmed, "/")
	if idx < 0 {
		return trimmed, "", false
	}
	return trimmed[:idx], trimmed[idx+1:], true
}

// OpenDir resolves path, which must name a directory, relative to d.
func (d *Directory) OpenDir(path string) (*Directory, error) {
	head, rest, hasRest := splitPath(path)
	if head == "" {
		return d, nil
	}
	entry, err := d.Find(head)
	if err != nil {
		return nil, err
	}
	sub, err := d.fs.openDirInode(entry.Inode)
	if err != nil {
		return nil, err
	}
	if hasRest {
		return sub.OpenDir(rest)
	}
	return sub, nil
}

// OpenFile resolves path, which must name a regular file, relative to d.
func (d *Directory) OpenFile(path string) (*File, error) {
	head, rest, hasRest := splitPath(path)
	if hasRest {
		sub, err := d.OpenDir(head)
		if err != nil {
			return nil, err
		}
		return sub.OpenFile(rest)
	}
	entry, err := d.Find(head)
	if err != nil {
		return nil, err
	}
	in, err := d.fs.readInode(entry.Inode)
	if err != nil {
		return nil, err
	}
	if in.isSymlink() {
		return nil, wrapErr(KindUnsupported, "symlink traversal is not supported", nil)
	}
	if !in.isRegular() {
		return nil, wrapErr(KindNotFound, "path does not name a regular file", nil)
	}
	return &File{fs: d.fs, ino: entry.Inode, in: in}, nil
}

// addEntry appends a directory entry: the directory must have exactly
// one single-block extent; the new entry is carved out of the trailing
// padding of the current last entry.
func (d *Directory) addEntry(name string, childIno uint32, ft dirEntryFileType) error {
	if err := d.fs.checkMutationSupported(); err != nil {
		return err
	}
	leaf, err := d.singleExtent()
	if err != nil {
		return err
	}
	entries, tail, err := d.readBlock()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return wrapErr(KindIO, "directory block has no entries", nil)
	}
	if d.fs.metadataCsum() && tail != nil {
		if err := d.verifyTailChecksum(entries, tail); err != nil {
			return err
		}
	}

	last := entries[len(entries)-1]
	realLen := last.realRecLen()
	if last.recLen < realLen {
		return wrapErr(KindIO, "last directory entry rec_len shorter than its name requires", nil)
	}
	free := last.recLen - realLen
	newEntry := &directoryEntry{inode: childIno, fileType: ft, name: name}
	needed := newEntry.realRecLen()
	if free < needed {
		return wrapErr(KindNoSpace, "no room in directory block for new entry", nil)
	}

	ee := d.fs.extentEngine()
	filetypeFeature := d.fs.filetypeFeature()
	extentBytes := uint64(leaf.length) * uint64(d.fs.blockSize)

	var offsets []uint64
	var o uint64
	for _, e := range entries {
		offsets = append(offsets, o)
		o += uint64(e.recLen)
	}
	lastOffset := offsets[len(offsets)-1]

	last.recLen = realLen
	if err := ee.writeDirEntry(leaf.physicalBlock, lastOffset, last, filetypeFeature); err != nil {
		return err
	}
	newEntry.recLen = free
	if err := ee.writeDirEntry(leaf.physicalBlock, lastOffset+uint64(realLen), newEntry, filetypeFeature); err != nil {
		return err
	}

	newEntries := append(append([]*directoryEntry{}, entries[:len(entries)-1]...), last, newEntry)
	blockMinusTail := serializeEntries(newEntries, filetypeFeature, int(extentBytes)-dirTailLength)
	newTail := &directoryTail{checksum: computeDirBlockChecksum(d.fs.uuid[:], d.ino, d.in.generation(), blockMinusTail)}
	if err := ee.writeBytes(leaf.physicalBlock, extentBytes-uint64(dirTailLength), newTail.toBytes()); err != nil {
		return err
	}

	if ft == dirFileTypeDirectory {
		d.in.setLinksCount(d.in.linksCount() + 1)
		if err := d.fs.writeInode(d.in); err != nil {
			return err
		}
	}
	return nil
}

// CreateDir creates a new subdirectory at path. All parent components
// of path must already exist.
func (d *Directory) CreateDir(path string, uid, gid uint32, perm uint16, atime, ctime, mtime, crtime uint32) (*Directory, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	return d.createDir(path, uid, gid, perm, atime, ctime, mtime, crtime)
}

func (d *Directory) createDir(path string, uid, gid uint32, perm uint16, atime, ctime, mtime, crtime uint32) (*Directory, error) {
	head, rest, hasRest := splitPath(path)
	if hasRest {
		parent, err := d.OpenDir(head)
		if err != nil {
			return nil, err
		}
		return parent.createDir(rest, uid, gid, perm, atime, ctime, mtime, crtime)
	}
	if err := d.fs.checkMutationSupported(); err != nil {
		return nil, err
	}
	if _, err := d.Find(head); err == nil {
		return nil, wrapErr(KindAlreadyExists, "directory entry already exists: "+head, nil)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	childIno, err := d.fs.allocInode(true)
	if err != nil {
		return nil, err
	}
	preferredGroup := int((childIno - 1) / d.fs.sb.inodesPerGroup())
	block, err := d.fs.allocContiguous(1, preferredGroup)
	if err != nil {
		d.fs.rollbackCreate(childIno, true, 0, false)
		return nil, err
	}

	in := inodeFromBytes(make([]byte, d.fs.sb.inodeSize()), childIno)
	in.setMode(uint16(fileTypeDirectory) | perm)
	in.setFlags(inodeFlagUsesExtents)
	in.setLinksCount(2)
	in.setBlocksLo(d.fs.blockSize / 512)
	in.setSize(uint64(d.fs.blockSize))
	in.setUID(uid)
	in.setGID(gid)
	in.setTimes(atime, ctime, mtime, crtime)
	in.setExtraIsize(d.fs.sb.wantExtraIsize())
	in.initExtentTree(0, 1, block)
	if err := d.fs.writeInode(in); err != nil {
		d.fs.rollbackCreate(childIno, true, block, true)
		return nil, err
	}

	if err := d.writeDotEntries(block, childIno, d.ino, in.generation()); err != nil {
		d.fs.rollbackCreate(childIno, true, block, true)
		return nil, err
	}

	if err := d.addEntry(head, childIno, dirFileTypeDirectory); err != nil {
		d.fs.rollbackCreate(childIno, true, block, true)
		return nil, err
	}

	return &Directory{fs: d.fs, ino: childIno, in: in}, nil
}

// writeDotEntries writes "." -> self, ".." -> parent, and the block
// tail into a freshly allocated single directory block.
func (d *Directory) writeDotEntries(block uint64, selfIno, parentIno uint32, generation uint32) error {
	ee := d.fs.extentEngine()
	filetypeFeature := d.fs.filetypeFeature()
	blockSize := int(d.fs.blockSize)

	dot := &directoryEntry{inode: selfIno, fileType: dirFileTypeDirectory, name: "."}
	dot.recLen = dot.realRecLen()
	dotdot := &directoryEntry{inode: parentIno, fileType: dirFileTypeDirectory, name: ".."}
	dotdot.recLen = uint16(blockSize) - uint16(dirTailLength) - dot.recLen

	if err := ee.writeDirEntry(block, 0, dot, filetypeFeature); err != nil {
		return err
	}
	if err := ee.writeDirEntry(block, uint64(dot.recLen), dotdot, filetypeFeature); err != nil {
		return err
	}

	blockMinusTail := serializeEntries([]*directoryEntry{dot, dotdot}, filetypeFeature, blockSize-dirTailLength)
	tail := &directoryTail{checksum: computeDirBlockChecksum(d.fs.uuid[:], selfIno, generation, blockMinusTail)}
	return ee.writeBytes(block, uint64(blockSize-dirTailLength), tail.toBytes())
}

// CreateFile creates a regular file at path: like CreateDir but
// without the "." / ".." block, links_count=1, mode=REG. The file's
// size is one block, backed by one newly allocated block whose
// existing contents are not cleared.
func (d *Directory) CreateFile(path string, uid, gid uint32, perm uint16, atime, ctime, mtime, crtime uint32) (*File, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	return d.createFile(path, uid, gid, perm, atime, ctime, mtime, crtime)
}

func (d *Directory) createFile(path string, uid, gid uint32, perm uint16, atime, ctime, mtime, crtime uint32) (*File, error) {
	head, rest, hasRest := splitPath(path)
	if hasRest {
		parent, err := d.OpenDir(head)
		if err != nil {
			return nil, err
		}
		return parent.createFile(rest, uid, gid, perm, atime, ctime, mtime, crtime)
	}
	if err := d.fs.checkMutationSupported(); err != nil {
		return nil, err
	}
	if _, err := d.Find(head); err == nil {
		return nil, wrapErr(KindAlreadyExists, "directory entry already exists: "+head, nil)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	childIno, err := d.fs.allocInode(false)
	if err != nil {
		return nil, err
	}
	preferredGroup := int((childIno - 1) / d.fs.sb.inodesPerGroup())
	block, err := d.fs.allocContiguous(1, preferredGroup)
	if err != nil {
		d.fs.rollbackCreate(childIno, false, 0, false)
		return nil, err
	}

	in := inodeFromBytes(make([]byte, d.fs.sb.inodeSize()), childIno)
	in.setMode(uint16(fileTypeRegularFile) | perm)
	in.setFlags(inodeFlagUsesExtents)
	in.setLinksCount(1)
	in.setBlocksLo(d.fs.blockSize / 512)
	in.setSize(uint64(d.fs.blockSize))
	in.setUID(uid)
	in.setGID(gid)
	in.setTimes(atime, ctime, mtime, crtime)
	in.setExtraIsize(d.fs.sb.wantExtraIsize())
	in.initExtentTree(0, 1, block)
	if err := d.fs.writeInode(in); err != nil {
		d.fs.rollbackCreate(childIno, false, block, true)
		return nil, err
	}

	if err := d.addEntry(head, childIno, dirFileTypeRegularFile); err != nil {
		d.fs.rollbackCreate(childIno, false, block, true)
		return nil, err
	}

	return &File{fs: d.fs, ino: childIno, in: in}, nil
}
