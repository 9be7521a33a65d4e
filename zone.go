package heartbeat

// Zone denotes a heart rate training zone
type Zone int

const (
	ZoneRest Zone = iota
	ZoneWarmUp
	ZoneFatBurn
	ZoneAerobic
	ZoneAnaerobic
	ZoneMaximum
)

// Lower heart rate bounds (inclusive, in bpm) of all zones above ZoneRest
var zoneThresholds = [...]uint16{96, 116, 136, 156, 176}

var zoneNames = [...]string{"Rest", "Warm-Up", "Fat Burn", "Aerobic", "Anaerobic", "Maximum"}

// ZoneFor classifies a heart rate into its training zone
func ZoneFor(heartRate uint16) Zone {
	for i, threshold := range zoneThresholds {
		if heartRate < threshold {
			return Zone(i)
		}
	}
	return ZoneMaximum
}

// String fulfils the Stringer interface
func (z Zone) String() string {
	if z < 0 || int(z) >= len(zoneNames) {
		return "Unknown"
	}
	return zoneNames[z]
}
