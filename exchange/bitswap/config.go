package bitswap

// Config holds the Engine's tunables as fields on a value the caller
// constructs explicitly, rather than as package-level vars. It carries
// only the two channel buffer sizes below; the teacher's other
// bitswap.go/workers.go tunables (maxProvidersPerRequest,
// rebroadcastDelay, TaskWorkerCount and the like) have no counterpart
// here.
type Config struct {
	// ReadyBlocksBufferSize bounds the ready_blocks channel described
	// in spec.md §3/§5. The reference design leaves it unbounded;
	// this core bounds it and documents the policy: Engine.SubmitReadyBlock
	// blocks the caller (respecting ctx) once the buffer is full,
	// rather than silently dropping blocks.
	ReadyBlocksBufferSize int

	// DontHaveBufferSize bounds the dont_have channel the same way.
	DontHaveBufferSize int
}

// DefaultConfig returns the Config this module uses unless the caller
// overrides it.
func DefaultConfig() Config {
	return Config{
		ReadyBlocksBufferSize: 256,
		DontHaveBufferSize:    256,
	}
}
