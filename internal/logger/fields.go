package logger

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so runs can be aggregated and queried.
const (
	// ========================================================================
	// Pipeline identity
	// ========================================================================
	KeyRun    = "run_id"  // Unique identifier of one evaluation run
	KeyEngine = "engine"  // Engine name: precache, writer, loader
	KeyName   = "name"    // Instance name within an engine (input, gt, ...)
	KeyWorker = "worker"  // Worker goroutine ordinal

	// ========================================================================
	// Packets
	// ========================================================================
	KeyIndex   = "idx"     // Packet index
	KeyBytes   = "bytes"   // Payload size in bytes
	KeyWidth   = "width"   // Frame width in pixels
	KeyHeight  = "height"  // Frame height in pixels
	KeyPackets = "packets" // Packet count

	// ========================================================================
	// Cache and queue state
	// ========================================================================
	KeyCapacity = "capacity" // Configured byte budget
	KeyUsed     = "used"     // Occupied bytes
	KeyQueued   = "queued"   // Pending packets or bytes
	KeyDropped  = "dropped"  // Packets rejected by the drop policy

	// ========================================================================
	// Dataset and archive
	// ========================================================================
	KeyPath   = "path"   // File or directory path
	KeySource = "source" // Dataset source name
	KeyOutput = "output" // Archive destination

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)
