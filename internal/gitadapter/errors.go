package gitadapter

import "errors"

// ErrNotFastForward is returned by UpdateRef when a non-forced update's
// compare-and-swap fails because the ref moved since it was last read.
var ErrNotFastForward = errors.New("gitadapter: ref update was not a fast-forward")
