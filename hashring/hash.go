// Package hashring implements the consistent hash ring that underlies
// placement (spec §4.2, §4.3): a non-cryptographic 32-bit hash of a key's
// UTF-8 bytes, a sorted ring of virtual nodes, and a copy-on-write
// mutation discipline so lookups never synchronize.
package hashring

import (
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sys/cpu"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// hasHardwareCRC32 mirrors the condition under which Go's own hash/crc32
// package switches from its software table-driven path to the CPU's native
// CRC32C instruction (SSE4.2 on amd64, the CRC32 extension on arm64).
var hasHardwareCRC32 = cpu.X86.HasSSE42 || cpu.ARM64.HasCRC32

// Hash32 returns the 32-bit ring key for b: hardware-accelerated CRC32C
// when the CPU supports it, otherwise the low 32 bits of XXH64 as a fast
// software fallback (spec §4.2).
func Hash32(b []byte) uint32 {
	if hasHardwareCRC32 {
		return crc32.Checksum(b, castagnoliTable)
	}
	return uint32(xxhash.Sum64(b))
}

// HashString is Hash32 over the UTF-8 bytes of s, the common call shape for
// ring keys built from "actorType:actorId" composites.
func HashString(s string) uint32 {
	return Hash32([]byte(s))
}
