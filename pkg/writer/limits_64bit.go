//go:build !(386 || arm || mips || mipsle)

package writer

// MaxQueueSize caps the pending-byte budget on 64-bit platforms.
const MaxQueueSize uint64 = 6 << 30
