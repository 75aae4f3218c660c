package scanning

import "time"

// Timer is a cancellable delayed task
type Timer interface {
	// Stop prevents the task from running if it has not started yet
	Stop() bool
}

// Scheduler runs f once after d has elapsed
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// wallScheduler schedules on the runtime timer heap
type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
