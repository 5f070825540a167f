package scheduler

import "time"

// Clock abstracts wall-clock reads so tier selection can be tested at a
// fixed instant.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return realClock{} }
