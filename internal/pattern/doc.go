// Package pattern loads keyframe patterns and keeps the named pattern library.
//
// A pattern is a sorted list of frames. Each frame carries a timestamp in
// seconds and an ordered list of raw actuator values. Pattern text is
// comma-separated rows: the first column is a timestamp in tenths of a
// second, the remaining columns are values.
//
//	0,10,20
//	5,30,40
//
// parses into two frames at 0.0 s and 0.5 s with Length 0.5.
//
// # Key Types
//
//   - Pattern: immutable frame sequence, shared by pointer between assignments
//   - Frame: one timestamped value row
//   - Library: thread-safe named pattern store, filled from a directory at startup
//   - MalformedPatternError: parse failure naming the offending row and column
//
// # Usage
//
//	p, err := pattern.Parse(text)
//	if errors.Is(err, pattern.ErrMalformedPattern) {
//	    // reject before any playback starts
//	}
//
//	lib := pattern.NewLibrary()
//	lib.SetLogger(log)
//	n, err := lib.LoadDir(cfg.Playback.PatternsDir)
package pattern
