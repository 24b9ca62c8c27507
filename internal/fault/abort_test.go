package fault

import "testing"

// abortPanic is the sentinel withAbortCapture's stub Abort panics with,
// letting a deferred recover distinguish "the code under test aborted"
// from any other panic.
type abortPanic struct{ err error }

// withAbortCapture substitutes Abort with a stub that panics with
// abortPanic{err} instead of calling os.Exit, runs fn, and returns the
// error Abort was called with. It fails the test if fn returns without
// ever calling Abort, or if fn panics with anything else.
func withAbortCapture(t *testing.T, fn func()) (captured error) {
	t.Helper()

	orig := Abort
	t.Cleanup(func() { Abort = orig })
	Abort = func(err error) { panic(abortPanic{err}) }

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected Abort to be called, but fn returned normally")
		}
		ap, ok := r.(abortPanic)
		if !ok {
			panic(r) // not ours: let the real panic surface
		}
		captured = ap.err
	}()

	fn()
	return captured
}
