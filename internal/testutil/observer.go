package testutil

import "sync"

// RecordingCheckObserver records checker callbacks. Safe for concurrent use.
type RecordingCheckObserver struct {
	mu          sync.Mutex
	Updates     []int // thousandths
	Succeeded   bool
	FoundErrors bool
	Size        int64
	Bandwidth   int64
}

func (o *RecordingCheckObserver) OnCheckUpdate(bandwidth int64, thousandth int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Updates = append(o.Updates, thousandth)
}

func (o *RecordingCheckObserver) OnCheckSuccess(size, bandwidth int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Succeeded = true
	o.Size, o.Bandwidth = size, bandwidth
}

func (o *RecordingCheckObserver) OnCheckFoundErrors(size, bandwidth int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.FoundErrors = true
	o.Size, o.Bandwidth = size, bandwidth
}
