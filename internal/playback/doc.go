// Package playback runs keyframe patterns on haptic actuators.
//
// The Scheduler keeps two maps keyed by (device, category, index): the
// pattern assignment currently playing on each actuator, and the last
// status sent to it. A periodic tick (10 ms by default) samples each
// assignment and sends a command only when the sampled status differs
// from the stored one.
//
// Architecture:
//
//	  StartPattern / StopPattern / Active
//	  (resolve on caller goroutine)
//	               │ request channel
//	               ▼
//	┌─────────────────────────────────────────┐
//	│          Run loop (one goroutine)        │
//	│  assignments ──┐                         │
//	│                ├─ tick: sample, decode,  │
//	│  statuses   ───┘  round-robin, diff      │
//	└────────────────────┬────────────────────┘
//	                     │ buffered queue
//	                     ▼
//	          dispatcher ──▶ Sender.Send
//	                     └─▶ Observer
//
// Per actuator the lifecycle is Idle → Playing → Idle. StartPattern on a
// playing actuator restarts it with the new pattern from frame 0.
//
// # Sampling
//
// Elapsed seconds since start, taken modulo the pattern length when
// looping, select the last frame at or before that time. Before the first
// frame the actuator rests at its category's zero status; after the last
// frame of a non-looping pattern the last frame holds. Frame values decode
// per category:
//
//   - rotate: (clockwise flag, speed) pairs, speed / 100
//   - linear: (position, speed) pairs, position / 200
//   - scalar: one value each, value / 100
//
// Actuators of one device and category draw decoded values in install
// order, cycling when there are more actuators than values.
//
// # Thread Safety
//
// Scheduler methods are safe for concurrent use once Run has started.
package playback
