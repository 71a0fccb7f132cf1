package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageRequestDone   Stage = "REQUEST_DONE"
	StageChunkWritten  Stage = "CHUNK_WRITTEN"
	StageChunkSkipped  Stage = "CHUNK_SKIPPED"
	StageWorkerStopped Stage = "WORKER_STOPPED"
)

// Result labels attached to REQUEST_DONE events.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event captures a single milestone of a run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Worker is the emitting worker index, or -1 for run-level events.
	Worker int
	// Sequence is the chunk ordinal for chunk and request events.
	Sequence uint64
	// Result is ResultSuccess or ResultFailure on REQUEST_DONE.
	Result string
	// Bytes is the size of the appended translation on CHUNK_WRITTEN.
	Bytes int64
	// HistoryLines is the cursor value after a write.
	HistoryLines uint64
	Dur          time.Duration
	// Note carries low-volume context such as a failure reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageWorkerStopped:
	case StageRequestDone:
		if e.Sequence == 0 {
			return errors.New("request done requires sequence")
		}
		if e.Result != ResultSuccess && e.Result != ResultFailure {
			return fmt.Errorf("request done has unknown result %q", e.Result)
		}
	case StageChunkWritten, StageChunkSkipped:
		if e.Sequence == 0 {
			return fmt.Errorf("%s requires sequence", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
