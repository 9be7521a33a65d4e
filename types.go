//go:generate stringer -type=State -trimprefix=State
package heartbeat

import (
	"fmt"
	"strings"
	"time"
)

// State denotes a connection state
type State int

const (

	// StateScanning is active while scanning for a heart rate sensor
	StateScanning State = iota

	// StateConnected is active while being connected to the sensor
	StateConnected

	// StateDisconnected is active after being disconnected from the sensor
	StateDisconnected
)

// ConnectionStatus denotes the current status of the bluetooth device
type ConnectionStatus struct {
	Error error
	State
}

// DeviceInfo denotes immutable information about the sensor (device information service)
type DeviceInfo struct {
	Manufacturer    string
	Model           string
	SoftwareVersion string
	FirmwareVersion string
}

// SensorLocation denotes the body sensor location (characteristic 0x2A38)
type SensorLocation byte

// Body sensor locations as defined by the heart rate service
const (
	SensorLocationOther SensorLocation = iota
	SensorLocationChest
	SensorLocationWrist
	SensorLocationFinger
	SensorLocationHand
	SensorLocationEarLobe
	SensorLocationFoot
)

var sensorLocationNames = [...]string{"Other", "Chest", "Wrist", "Finger", "Hand", "Ear Lobe", "Foot"}

// String fulfils the Stringer interface
func (l SensorLocation) String() string {
	if int(l) < len(sensorLocationNames) {
		return sensorLocationNames[l]
	}
	return fmt.Sprintf("Reserved(%d)", byte(l))
}

// Reading denotes a decoded heart rate measurement
type Reading struct {

	// HeartRate is given in beats per minute
	HeartRate uint16

	// ContactDetected is only ever true if the sensor supports contact detection
	ContactDetected bool

	// EnergyExpended is given in kilojoules, nil if not transmitted
	EnergyExpended *uint16

	RRIntervalPresent bool

	// RRIntervals are given in units of 1/1024 s, in transmission order
	RRIntervals []uint16
}

// RRDurations returns the RR intervals as durations
func (r *Reading) RRDurations() []time.Duration {
	durations := make([]time.Duration, len(r.RRIntervals))
	for i, rr := range r.RRIntervals {
		durations[i] = time.Duration(rr) * time.Second / 1024
	}
	return durations
}

// String fulfils the Stringer interface
func (r *Reading) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HR: %d bpm, Contact: %t", r.HeartRate, r.ContactDetected)
	if r.EnergyExpended != nil {
		fmt.Fprintf(&sb, ", Energy: %d kJ", *r.EnergyExpended)
	}
	if r.RRIntervalPresent {
		fmt.Fprintf(&sb, ", RR: %v", r.RRDurations())
	}
	return sb.String()
}

// Measurement denotes a heart rate reading received at a certain point in time
type Measurement struct {
	TimeStamp time.Time
	Reading
}

// String fulfils the Stringer interface
func (m *Measurement) String() string {
	return fmt.Sprintf("%s [%s] (%s)", m.TimeStamp.Format(time.RFC3339), m.Reading.String(), ZoneFor(m.HeartRate))
}

// Handler is called for each received measurement, or with a non-nil error if a notification
// could not be decoded
type Handler func(m Measurement, err error)

// Subscription denotes an active registration of a Handler with a Source
type Subscription interface {
	Unsubscribe() error
}

// Source denotes a provider of heart rate notifications
type Source interface {
	Subscribe(fn Handler) (Subscription, error)
}

var (
	_ Source = (*Monitor)(nil)
	_ Source = (*Simulator)(nil)
)
