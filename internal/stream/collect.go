package stream

import (
	"errors"
	"io"
)

// Collect decodes r to the end, calling onUpdate (when non-nil) after every
// delta. The returned snapshot is finished even when err is non-nil.
func Collect(r io.Reader, reasoning bool, onUpdate func(Snapshot)) (Snapshot, error) {
	dec := NewDecoder(r)
	acc := NewAccumulator(reasoning)
	for {
		delta, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return acc.Finish(), nil
		}
		if err != nil {
			return acc.Finish(), err
		}
		snap := acc.Append(delta)
		if onUpdate != nil {
			onUpdate(snap)
		}
	}
}
