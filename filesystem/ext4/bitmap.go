package ext4

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// bitmap is a byte-packed, LSB-first-within-byte bit array exactly as
// stored on disk for a block or inode bitmap: bit i of byte i/8 is bit
// (i mod 8) counting from the low bit. It is backed by bitset.BitSet;
// (de)serialization walks the bits one at a time, mapping bit i of the
// set to bit (i mod 8) of byte i/8.
type bitmap struct {
	set  *bitset.BitSet
	bits uint
}

func bitmapFromBytes(b []byte) *bitmap {
	bits := uint(len(b)) * 8
	bs := bitset.New(bits)
	for i, byt := range b {
		if byt == 0 {
			continue
		}
		for j := uint(0); j < 8; j++ {
			if byt&(1<<j) != 0 {
				bs.Set(uint(i)*8 + j)
			}
		}
	}
	return &bitmap{set: bs, bits: bits}
}

func newBitmap(bits uint) *bitmap {
	return &bitmap{set: bitset.New(bits), bits: bits}
}

// toBytes serializes the bitmap back into its on-disk byte-packed,
// LSB-first form, padded with zero bytes (never with set bits) up to
// sizeBytes.
func (bm *bitmap) toBytes(sizeBytes int) []byte {
	out := make([]byte, sizeBytes)
	for i := uint(0); i < bm.bits && int(i/8) < sizeBytes; i++ {
		if bm.set.Test(i) {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// bytes serializes the bitmap at its natural on-disk length, one byte
// per eight bits. This is the length every bitmap checksum covers.
func (bm *bitmap) bytes() []byte {
	return bm.toBytes(int((bm.bits + 7) / 8))
}

func (bm *bitmap) setBit(i uint) { bm.set.Set(i) }
func (bm *bitmap) clear(i uint) { bm.set.Clear(i) }
func (bm *bitmap) get(i uint) bool {
	return bm.set.Test(i)
}

// findUnused returns the index of the first zero bit, scanning
// low-to-high, or (0, false) when every bit is set.
func (bm *bitmap) findUnused() (uint, bool) {
	i, ok := bm.set.NextClear(0)
	if !ok || i >= bm.bits {
		return 0, false
	}
	return i, true
}

// findRun returns the first index of a run of k consecutive zero bits,
// scanning low-to-high; a set bit resets the running count, and the
// returned index is the run's first bit.
func (bm *bitmap) findRun(k uint) (uint, bool) {
	if k == 0 {
		return 0, false
	}
	var run uint
	var start uint
	for i := uint(0); i < bm.bits; i++ {
		if bm.set.Test(i) {
			run = 0
			continue
		}
		if run == 0 {
			start = i
		}
		run++
		if run == k {
			return start, true
		}
	}
	return 0, false
}

func (bm *bitmap) size() uint { return bm.bits }

func (bm *bitmap) String() string {
	return fmt.Sprintf("bitmap(%d bits)", bm.bits)
}
