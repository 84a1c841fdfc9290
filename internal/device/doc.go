// Package device models haptic devices and resolves address expressions
// to the actuators they name.
//
// A device reports its actuators in three message categories (rotate,
// linear, scalar). Each actuator has a 0-based wire index and a subtype
// such as vibrate or oscillate. An address expression picks actuators by
// device name and, optionally, subtype and 1-based ordinal:
//
//	"Wand"                   every actuator on the device named Wand
//	"wand:vibrate"           every vibrate actuator on Wand
//	"wand:vibrate2, cage"    Wand's second vibrator, plus all of Cage
//	"all_vibrate"            every vibrate actuator on every device
//	"all"                    everything
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        device package                        │
//	│                                                              │
//	│  ┌──────────────────┐   ┌──────────────────┐                 │
//	│  │     Registry     │   │  ParseAddress /  │                 │
//	│  │  (registry.go)   │──▶│     Resolve      │──▶ []Target     │
//	│  │                  │   │ (address.go,     │                 │
//	│  │ • hub snapshot   │   │  resolver.go)    │                 │
//	│  │ • deep copies    │   └────────┬─────────┘                 │
//	│  └──────────────────┘            │                           │
//	│           ▲                      ▼                           │
//	└───────────│──────────────── ErrorSink ───────────────────────┘
//	            │
//	   hub device list (MQTT)
//
// # Key Types
//
//   - Device, Capability: hub-reported snapshot entry
//   - AddressUnit: one parsed comma-separated unit
//   - Target: resolved (device, category, indexes)
//   - FeatureKey: one addressable actuator, comparable
//   - Status: sealed variant (RotateStatus, LinearStatus, ScalarStatus)
//   - ErrorSink: receives malformed-address diagnostics
//
// # Thread Safety
//
// Registry is safe for concurrent use. ParseAddress and Resolve are pure
// apart from reporting to the sink.
package device
