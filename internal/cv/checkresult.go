package cv

import (
	"fmt"

	"chunkvault/internal/model"
)

type CheckStatus int

const (
	CheckSuccess CheckStatus = iota
	CheckError
	CheckGeneralError
)

func (s CheckStatus) String() string {
	switch s {
	case CheckSuccess:
		return "success"
	case CheckError:
		return "error"
	case CheckGeneralError:
		return "general error"
	default:
		return fmt.Sprintf("CheckStatus(%d)", int(s))
	}
}

// CheckResult is the outcome of one Checker run.
// For CheckGeneralError only Err is set.
type CheckResult struct {
	Status CheckStatus
	Err    error

	// Size is the number of stored bytes that were downloaded and verified.
	Size      int64
	Bandwidth int64 // bytes per second

	ExistingSnapshots   int
	ReadableSnapshots   int
	GoodSnapshots       []model.StoredSnapshot
	BadSnapshots        []model.StoredSnapshot
	UnreadableSnapshots []model.StoredSnapshot

	CheckedChunks   int
	MissingChunkIDs []string
	BadChunkIDs     []string
}

func generalError(err error) *CheckResult {
	return &CheckResult{Status: CheckGeneralError, Err: err}
}

// CheckObserver is told about progress and the final outcome of a check.
type CheckObserver interface {
	// OnCheckUpdate is called periodically; thousandth is 0..1000 of sampled bytes verified.
	OnCheckUpdate(bandwidth int64, thousandth int)
	OnCheckSuccess(size, bandwidth int64)
	OnCheckFoundErrors(size, bandwidth int64)
}

type nopCheckObserver struct{}

func (nopCheckObserver) OnCheckUpdate(int64, int)        {}
func (nopCheckObserver) OnCheckSuccess(int64, int64)     {}
func (nopCheckObserver) OnCheckFoundErrors(int64, int64) {}
