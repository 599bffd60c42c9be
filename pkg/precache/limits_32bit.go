//go:build 386 || arm || mips || mipsle

package precache

// MaxCacheSize caps the scratch buffer on 32-bit platforms, where a larger
// scratch would not be addressable.
const MaxCacheSize uint64 = 2 << 30
