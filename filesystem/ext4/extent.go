package ext4

// extentEngine performs physical reads/writes over the backing stream,
// addressed as "a physical block base plus an intra-extent byte
// offset"; callers resolve logical blocks to physical ones from the
// inode's extents. It also reads and writes single directory entries
// at such addresses.
type extentEngine struct {
	f         blockDevice
	blockSize uint32
}

func newExtentEngine(f blockDevice, blockSize uint32) *extentEngine {
	return &extentEngine{f: f, blockSize: blockSize}
}

// readBytes reads buf's length worth of bytes at physicalBlock's
// offsetWithinExtent'th byte.
func (e *extentEngine) readBytes(physicalBlock uint64, offsetWithinExtent uint64, buf []byte) error {
	pos := int64(physicalBlock)*int64(e.blockSize) + int64(offsetWithinExtent)
	return readAt(e.f, buf, pos)
}

func (e *extentEngine) writeBytes(physicalBlock uint64, offsetWithinExtent uint64, buf []byte) error {
	pos := int64(physicalBlock)*int64(e.blockSize) + int64(offsetWithinExtent)
	return writeAt(e.f, buf, pos)
}

// readDirEntry parses one directory entry at (extent base physical
// block, *offset) and advances *offset past the entry's rec_len. It
// returns (nil, false, nil) when the tail marker (inode==0 &&
// rec_len==12) is reached, or when offset has consumed the whole
// extent.
func (e *extentEngine) readDirEntry(physicalBlock uint64, extentBytes uint64, filetypeFeature bool, offset *uint64) (*directoryEntry, bool, error) {
	if *offset >= extentBytes {
		return nil, false, nil
	}
	// every entry starts with inode(4) + rec_len(2); read that much
	// first to learn the full record length before reading the rest.
	head := make([]byte, 6)
	if err := e.readBytes(physicalBlock, *offset, head); err != nil {
		return nil, false, err
	}
	ino := le32(head[0:4])
	recLen := le16(head[4:6])
	if ino == 0 && recLen == 12 {
		*offset += uint64(recLen)
		return nil, false, nil
	}
	if recLen < 8 {
		return nil, false, wrapErr(KindIO, "directory entry rec_len too small", nil)
	}
	rest := make([]byte, recLen-6)
	if err := e.readBytes(physicalBlock, *offset+6, rest); err != nil {
		return nil, false, err
	}
	full := append(head, rest...)
	entry, err := directoryEntryFromBytes(full, filetypeFeature)
	if err != nil {
		return nil, false, err
	}
	*offset += uint64(recLen)
	return entry, true, nil
}

// writeDirEntry serializes entry at (physicalBlock, offset), zero-
// padding out to entry.recLen bytes.
func (e *extentEngine) writeDirEntry(physicalBlock uint64, offset uint64, entry *directoryEntry, filetypeFeature bool) error {
	b := entry.toBytes(filetypeFeature)
	if len(b) < int(entry.recLen) {
		padded := make([]byte, entry.recLen)
		copy(padded, b)
		b = padded
	}
	return e.writeBytes(physicalBlock, offset, b)
}
