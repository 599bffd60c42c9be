//go:build !(386 || arm || mips || mipsle)

package precache

// MaxCacheSize caps the scratch buffer on 64-bit platforms.
const MaxCacheSize uint64 = 6 << 30
