package heartbeat

import (
	"testing"
	"time"
)

func TestReadingRRDurations(t *testing.T) {
	r := Reading{
		RRIntervalPresent: true,
		RRIntervals:       []uint16{1024, 512, 0},
	}

	durations := r.RRDurations()
	expected := []time.Duration{time.Second, 500 * time.Millisecond, 0}
	if len(durations) != len(expected) {
		t.Fatalf("unexpected number of durations: %v", durations)
	}
	for i := range expected {
		if durations[i] != expected[i] {
			t.Fatalf("unexpected duration at index %d: want %v, have %v", i, expected[i], durations[i])
		}
	}
}

func TestReadingString(t *testing.T) {
	var testCases = []struct {
		reading  Reading
		expected string
	}{
		{
			reading:  Reading{HeartRate: 80},
			expected: "HR: 80 bpm, Contact: false",
		},
		{
			reading: Reading{
				HeartRate:         120,
				ContactDetected:   true,
				EnergyExpended:    uint16Ptr(10),
				RRIntervalPresent: true,
				RRIntervals:       []uint16{1024},
			},
			expected: "HR: 120 bpm, Contact: true, Energy: 10 kJ, RR: [1s]",
		},
	}

	for _, cs := range testCases {
		if s := cs.reading.String(); s != cs.expected {
			t.Fatalf("unexpected string: want `%s`, have `%s`", cs.expected, s)
		}
	}
}

func TestStateString(t *testing.T) {
	if s := StateConnected.String(); s != "Connected" {
		t.Fatalf("unexpected state string: %s", s)
	}
	if s := State(7).String(); s != "State(7)" {
		t.Fatalf("unexpected string for invalid state: %s", s)
	}
}

func TestSensorLocationString(t *testing.T) {
	if s := SensorLocationEarLobe.String(); s != "Ear Lobe" {
		t.Fatalf("unexpected sensor location string: %s", s)
	}
	if s := SensorLocation(200).String(); s != "Reserved(200)" {
		t.Fatalf("unexpected string for reserved sensor location: %s", s)
	}
}
