package plug

import "time"

// Clock abstracts time so schedules can be driven deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the cancellation handle of a pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ceilSecond rounds t up to the next whole second.
func ceilSecond(t time.Time) time.Time {
	rounded := t.Truncate(time.Second)
	if rounded.Equal(t) {
		return t
	}
	return rounded.Add(time.Second)
}
