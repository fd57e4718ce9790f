package ext4

const (
	minDirEntryLength int = 8
	maxNameLength     int = 255
	dirTailLength     int = 12
	dirTailMarker     byte = 0xDE
)

// directoryEntry is a single directory entry, variant-agnostic: the
// FILETYPE incompat feature only changes how name_len/file_type pack
// into bytes on disk, not the logical shape.
// recLen is preserved verbatim from disk (rather than recomputed)
// because the add-entry protocol needs to distinguish a name's real
// minimal length from the padded rec_len of the last entry in a block.
type directoryEntry struct {
	inode    uint32
	recLen   uint16
	fileType dirEntryFileType
	name     string
}

// realRecLen is the minimal 4-byte-aligned rec_len this entry would
// need if it were not padded to fill trailing space: ⌈(8+len(name))/4⌉·4.
func (de *directoryEntry) realRecLen() uint16 {
	n := 8 + len(de.name)
	return uint16(((n + 3) / 4) * 4)
}

// directoryEntryFromBytes parses one entry (not including the tail
// case, handled by the caller/extent engine) from its full recLen-sized
// byte slice.
func directoryEntryFromBytes(b []byte, filetypeFeature bool) (*directoryEntry, error) {
	if len(b) < minDirEntryLength {
		return nil, wrapErr(KindIO, "directory entry shorter than minimum", nil)
	}
	ino := le32(b[0x0:0x4])
	recLen := le16(b[0x4:0x6])
	var nameLen int
	var ft dirEntryFileType
	var nameStart int
	if filetypeFeature {
		nameLen = int(b[0x6])
		ft = dirEntryFileType(b[0x7])
		nameStart = 0x8
	} else {
		nameLen = int(le16(b[0x6:0x8]))
		nameStart = 0x8
	}
	if nameStart+nameLen > len(b) {
		return nil, wrapErr(KindIO, "directory entry name overruns rec_len", nil)
	}
	name := string(b[nameStart : nameStart+nameLen])
	return &directoryEntry{inode: ino, recLen: recLen, fileType: ft, name: name}, nil
}

// toBytes serializes the entry's real (unpadded) content; the caller
// pads out to recLen, since padding is a property of placement within
// the block, not of the entry itself.
func (de *directoryEntry) toBytes(filetypeFeature bool) []byte {
	nameLen := len(de.name)
	b := make([]byte, minDirEntryLength+nameLen)
	putLe32(b[0x0:0x4], de.inode)
	putLe16(b[0x4:0x6], de.recLen)
	if filetypeFeature {
		b[0x6] = byte(nameLen)
		b[0x7] = byte(de.fileType)
	} else {
		putLe16(b[0x6:0x8], uint16(nameLen))
	}
	copy(b[minDirEntryLength:], de.name)
	return b
}

// directoryTail is the 12-byte sentinel pseudo-entry ending every
// directory block: inode=0, rec_len=12, a reserved zero name_len
// field, the marker byte 0xDE, and a CRC32C checksum of the block.
type directoryTail struct {
	checksum uint32
}

func directoryTailFromBytes(b []byte) (*directoryTail, bool) {
	if len(b) != dirTailLength {
		return nil, false
	}
	if le32(b[0:4]) != 0 || le16(b[4:6]) != uint16(dirTailLength) {
		return nil, false
	}
	if b[7] != dirTailMarker {
		return nil, false
	}
	return &directoryTail{checksum: le32(b[8:12])}, true
}

func (dt *directoryTail) toBytes() []byte {
	b := make([]byte, dirTailLength)
	putLe16(b[4:6], uint16(dirTailLength))
	b[6] = 0 // name_len
	b[7] = dirTailMarker
	putLe32(b[8:12], dt.checksum)
	return b
}

// computeDirBlockChecksum computes the directory-block tail checksum:
// CRC32C(UUID, seed=0xFFFFFFFF) -> LE(dirIno) -> LE(generation) ->
// the block bytes minus the tail, serialized from the entry sequence
// exactly as they tile the block (rec_len included, name padding
// included).
func computeDirBlockChecksum(uuidBytes []byte, dirIno, generation uint32, blockMinusTail []byte) uint32 {
	var identity [8]byte
	putLe32(identity[0:4], dirIno)
	putLe32(identity[4:8], generation)
	return chainedChecksum(uuidBytes, identity[:], blockMinusTail)
}
