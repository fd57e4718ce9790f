package ext4

// blockGroup is a runtime view over a single block group: its
// descriptor plus the two bitmaps it locates. Unlike a naive
// contiguous read, the block and inode bitmaps are fetched from the
// block addresses the descriptor itself gives; they need not be
// adjacent.
type blockGroup struct {
	number      int
	descriptor  *groupDescriptor
	blockBitmap *bitmap
	inodeBitmap *bitmap
}

func loadBlockGroup(f blockDevice, gd *groupDescriptor, number int, blockSize uint32, blocksPerGroup, inodesPerGroup uint32) (*blockGroup, error) {
	blockBitmapBytes := make([]byte, blocksPerGroup/8)
	if err := readAt(f, blockBitmapBytes, int64(gd.blockBitmapLocation())*int64(blockSize)); err != nil {
		return nil, wrapErr(KindIO, "read block bitmap", err)
	}
	inodeBitmapBytes := make([]byte, inodesPerGroup/8)
	if err := readAt(f, inodeBitmapBytes, int64(gd.inodeBitmapLocation())*int64(blockSize)); err != nil {
		return nil, wrapErr(KindIO, "read inode bitmap", err)
	}
	return &blockGroup{
		number:      number,
		descriptor:  gd,
		blockBitmap: bitmapFromBytes(blockBitmapBytes),
		inodeBitmap: bitmapFromBytes(inodeBitmapBytes),
	}, nil
}

func (bg *blockGroup) writeBlockBitmap(f blockDevice, blockSize uint32) error {
	return writeAt(f, bg.blockBitmap.bytes(), int64(bg.descriptor.blockBitmapLocation())*int64(blockSize))
}

func (bg *blockGroup) writeInodeBitmap(f blockDevice, blockSize uint32) error {
	return writeAt(f, bg.inodeBitmap.bytes(), int64(bg.descriptor.inodeBitmapLocation())*int64(blockSize))
}
