package ext4

// File is a handle bound to a regular-file inode.
type File struct {
	fs  *FileSystem
	ino uint32
	in  *inode
}

// Read copies file bytes into buf starting at offset: clamp to
// size-offset, walk the sorted extent list skipping extents wholly
// before offset, and read from each participating extent at its
// physical address. It returns the number of bytes actually read;
// reads past EOF return 0. An extent is exhausted once the
// intra-extent offset reaches extent.len*block_size.
func (f *File) Read(offset int64, buf []byte) (int, error) {
	size := f.in.size()
	if offset < 0 || uint64(offset) >= size {
		return 0, nil
	}
	remaining := size - uint64(offset)
	want := len(buf)
	if uint64(want) > remaining {
		want = int(remaining)
	}
	if want == 0 {
		return 0, nil
	}

	leaves, err := f.in.getExtents()
	if err != nil {
		return 0, err
	}

	ee := f.fs.extentEngine()
	blockSize := uint64(f.fs.blockSize)

	var written int
	pos := uint64(offset)
	for _, leaf := range leaves {
		if written >= want {
			break
		}
		extentBytes := uint64(leaf.length) * blockSize
		logicalStart := uint64(leaf.logicalBlock) * blockSize
		if pos < logicalStart {
			// sparse hole between extents: not supported.
			return written, wrapErr(KindUnsupported, "sparse logical blocks are not supported", nil)
		}
		intraOffset := pos - logicalStart
		if intraOffset >= extentBytes {
			continue
		}
		n := int(extentBytes - intraOffset)
		if n > want-written {
			n = want - written
		}
		if err := ee.readBytes(leaf.physicalBlock, intraOffset, buf[written:written+n]); err != nil {
			return written, err
		}
		written += n
		pos += uint64(n)
	}
	return written, nil
}

// Size returns the file's logical size in bytes.
func (f *File) Size() uint64 { return f.in.size() }
