package stackfs

// Generation returns the current branch-set generation
func (fs *FS) Generation() uint64 {
	return fs.generation.Load()
}

// BumpGeneration records a change of the branch set. Every mapping stamped
// before the bump reports itself stale from then on. It is a no-op once the
// filesystem is closed.
func (fs *FS) BumpGeneration() uint64 {
	if fs.closed.Load() {
		return fs.generation.Load()
	}
	gen := fs.generation.Add(1)
	fs.logger.Info("branch generation changed", "generation", gen)
	return gen
}

func (fs *FS) isStale(gen uint64) bool {
	return gen != fs.generation.Load()
}
