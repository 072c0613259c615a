package workflow

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RevertDelays holds how long success labels stay up per slot.
type RevertDelays struct {
	Generate time.Duration
	Save     time.Duration
	Copy     time.Duration
}

// DefaultRevertDelays matches the editor's display intervals.
func DefaultRevertDelays() RevertDelays {
	return RevertDelays{
		Generate: 4 * time.Second,
		Save:     3 * time.Second,
		Copy:     2 * time.Second,
	}
}

func (d RevertDelays) For(s Slot) time.Duration {
	switch s {
	case SlotGenerate:
		return d.Generate
	case SlotSave:
		return d.Save
	case SlotCopy:
		return d.Copy
	}
	return 0
}
