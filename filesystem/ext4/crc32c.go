package ext4

import (
	"encoding/binary"
	"hash/crc32"
)

// crc32cSeed is the starting value every metadata checksum chain in
// this package is seeded with, per the ext4 metadata_csum convention.
const crc32cSeed uint32 = 0xFFFFFFFF

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// crc32cUpdate continues a Castagnoli CRC32 chain. crc32.Update
// applies the standard pre/post inversion internally, so the double
// flip here undoes it and keeps the raw running value ext4 checksums
// chain and store.
func crc32cUpdate(crc uint32, input []byte) uint32 {
	return ^crc32.Update(^crc, crc32cTable, input)
}

func crc32cUpdateU32(crc uint32, n uint32) uint32 {
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], n)
	return crc32cUpdate(crc, data[:])
}

// crc32c computes the one-shot Castagnoli CRC32C of data, returning
// the raw running value (not finalized), as ext4 stores it. Finalizing
// crc32c(0xFFFFFFFF, "123456789") with a bit flip yields the textbook
// check vector 0xE3069283.
func crc32c(seed uint32, data []byte) uint32 {
	return crc32cUpdate(seed, data)
}

// chainedChecksum computes the three-stage chain every structural
// checksum in this package follows: seed, then the volume UUID, then
// identity fields (ino/generation/group-id, as applicable), then the
// object's own bytes with its checksum field(s) zeroed.
func chainedChecksum(uuid []byte, identity []byte, object []byte) uint32 {
	crc := crc32cUpdate(crc32cSeed, uuid)
	if len(identity) > 0 {
		crc = crc32cUpdate(crc, identity)
	}
	return crc32cUpdate(crc, object)
}
