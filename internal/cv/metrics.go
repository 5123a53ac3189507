package cv

// Metrics receives counters from the chunk store.
type Metrics interface {
	ChunkUploaded(bytes int64)
	ChunkChecked(bytes int64, ok bool)
	SnapshotWritten()
	Retried()
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ChunkUploaded(int64)      {}
func (NopMetrics) ChunkChecked(int64, bool) {}
func (NopMetrics) SnapshotWritten()         {}
func (NopMetrics) Retried()                 {}
