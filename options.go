package heartbeat

import (
	"math/rand"
	"time"

	"github.com/fako1024/gatt"
)

// WithDeviceID sets the Bluetooth device ID
func WithDeviceID(deviceID string) func(*Monitor) {
	return func(f *Monitor) {
		f.deviceID = deviceID
	}
}

// WithDeviceName sets the Bluetooth device name
func WithDeviceName(deviceName string) func(*Monitor) {
	return func(f *Monitor) {
		f.deviceName = deviceName
	}
}

// WithDevice sets the Bluetooth device
func WithDevice(btDevice gatt.Device) func(*Monitor) {
	return func(f *Monitor) {
		f.btDevice = btDevice
	}
}

// WithLogger sets a logger
func WithLogger(logger Logger) func(*Monitor) {
	return func(f *Monitor) {
		f.logger = logger
	}
}

// WithInterval sets the interval between two simulated notifications
func WithInterval(interval time.Duration) func(*Simulator) {
	return func(s *Simulator) {
		s.interval = interval
	}
}

// WithBounds sets the range the simulated heart rate oscillates in
func WithBounds(lower, upper uint16) func(*Simulator) {
	return func(s *Simulator) {
		s.minHeartRate = int(lower)
		s.maxHeartRate = int(upper)
	}
}

// WithStep sets the steady heart rate change per simulated notification
func WithStep(step int) func(*Simulator) {
	return func(s *Simulator) {
		s.step = step
	}
}

// WithJitter sets the maximum random heart rate deviation per simulated notification
func WithJitter(jitter int) func(*Simulator) {
	return func(s *Simulator) {
		s.jitter = jitter
	}
}

// WithSeed seeds the random source of the simulation
func WithSeed(seed int64) func(*Simulator) {
	return func(s *Simulator) {
		s.rand = rand.New(rand.NewSource(seed))
	}
}

// WithSimulatorLogger sets a logger for the simulation
func WithSimulatorLogger(logger Logger) func(*Simulator) {
	return func(s *Simulator) {
		s.logger = logger
	}
}
