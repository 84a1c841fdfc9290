package device

// Target is one resolved (device, category) pair with the selected actuator
// indexes in capability-list order.
type Target struct {
	Device   Device   `json:"device"`
	Category Category `json:"category"`
	Indexes  []int    `json:"indexes"`
}

// Keys expands the target into one FeatureKey per index.
func (t Target) Keys() []FeatureKey {
	keys := make([]FeatureKey, 0, len(t.Indexes))
	for _, idx := range t.Indexes {
		keys = append(keys, FeatureKey{DeviceID: t.Device.ID, Category: t.Category, Index: idx})
	}
	return keys
}

// Keys flattens targets into FeatureKeys, preserving order.
func Keys(targets []Target) []FeatureKey {
	var keys []FeatureKey
	for _, t := range targets {
		keys = append(keys, t.Keys()...)
	}
	return keys
}

// Resolve parses expr and matches every unit against devices.
//
// For each unit, matching devices are visited in the order given. Each
// device's rotate, linear and scalar lists are enumerated independently,
// counting a running 1-based ordinal per subtype within the list. An
// entry is selected when:
//   - the unit is "all_<subtype>" and the entry has that subtype, or
//   - the unit has no actuator filter, or
//   - the entry's subtype equals the filter and the ordinal is unset or
//     equal to the running count.
//
// Selected entries for one (device, category) form one Target; categories
// with nothing selected produce none. A (device, category, index) already
// selected by an earlier unit is not selected again.
//
// Parameters:
//   - devices: current device snapshot
//   - expr: address expression
//   - sink: receives malformed-address diagnostics; may be nil
//
// Returns:
//   - []Target: resolved targets, deterministic for a fixed device list
func Resolve(devices []Device, expr string, sink ErrorSink) []Target {
	units := ParseAddress(expr, sink)

	var targets []Target
	seen := make(map[FeatureKey]struct{})

	for _, unit := range units {
		scope, reserved := reservedScope(unit.Name)

		for i := range devices {
			d := &devices[i]
			if !reserved && NormalizeName(d.Name) != unit.Name {
				continue
			}

			for _, cat := range AllCategories() {
				indexes := selectIndexes(d.Capabilities(cat), unit, scope, reserved)

				kept := indexes[:0]
				for _, idx := range indexes {
					key := FeatureKey{DeviceID: d.ID, Category: cat, Index: idx}
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					kept = append(kept, idx)
				}
				if len(kept) == 0 {
					continue
				}

				targets = append(targets, Target{Device: *d.DeepCopy(), Category: cat, Indexes: kept})
			}
		}
	}

	return targets
}

// selectIndexes applies the unit's actuator filter to one capability list.
func selectIndexes(caps []Capability, unit AddressUnit, scope ActuatorType, reserved bool) []int {
	var indexes []int
	ordinals := make(map[ActuatorType]int)

	for _, c := range caps {
		ordinals[c.Type]++

		var selected bool
		switch {
		case reserved && scope != "":
			selected = c.Type == scope
		case unit.Type == "":
			selected = true
		default:
			selected = c.Type == unit.Type && (unit.Ordinal == 0 || unit.Ordinal == ordinals[c.Type])
		}

		if selected {
			indexes = append(indexes, c.Index)
		}
	}

	return indexes
}
