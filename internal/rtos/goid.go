package rtos

import (
	"runtime"
	"strconv"
)

// ThreadID identifies the goroutine acting as an RTOS thread. Zero means no
// identity.
type ThreadID uint64

func (id ThreadID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// CurrentThreadID returns the identity of the calling goroutine, parsed from
// the "goroutine N [...]" stack header.
func CurrentThreadID() ThreadID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return ThreadID(id)
}
