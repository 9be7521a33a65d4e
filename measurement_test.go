package heartbeat

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func uint16Ptr(v uint16) *uint16 {
	return &v
}

func TestDecode(t *testing.T) {
	var testCases = []struct {
		name     string
		data     []byte
		expected Reading
	}{
		{
			name: "8 bit heart rate only",
			data: []byte{0x00, 0x50},
			expected: Reading{
				HeartRate:   80,
				RRIntervals: []uint16{},
			},
		},
		{
			name: "16 bit heart rate",
			data: []byte{0x01, 0x50, 0x00},
			expected: Reading{
				HeartRate:   80,
				RRIntervals: []uint16{},
			},
		},
		{
			name: "16 bit heart rate using high byte",
			data: []byte{0x01, 0x2c, 0x01},
			expected: Reading{
				HeartRate:   300,
				RRIntervals: []uint16{},
			},
		},
		{
			name: "contact supported and detected",
			data: []byte{0x06, 0x50, 0x01},
			expected: Reading{
				HeartRate:       80,
				ContactDetected: true,
				RRIntervals:     []uint16{},
			},
		},
		{
			name: "contact supported but not detected",
			data: []byte{0x04, 0x50},
			expected: Reading{
				HeartRate:   80,
				RRIntervals: []uint16{},
			},
		},
		{
			name: "contact detected bit without support",
			data: []byte{0x02, 0x50},
			expected: Reading{
				HeartRate:   80,
				RRIntervals: []uint16{},
			},
		},
		{
			name: "energy expended and rr intervals",
			data: []byte{0x18, 0x50, 0x0A, 0x00, 0x64, 0x00, 0xC8, 0x00},
			expected: Reading{
				HeartRate:         80,
				EnergyExpended:    uint16Ptr(10),
				RRIntervalPresent: true,
				RRIntervals:       []uint16{100, 200},
			},
		},
		{
			name: "rr intervals with trailing odd byte",
			data: []byte{0x10, 0x50, 0x64, 0x00, 0xC8, 0x00, 0xFF},
			expected: Reading{
				HeartRate:         80,
				RRIntervalPresent: true,
				RRIntervals:       []uint16{100, 200},
			},
		},
		{
			name: "rr flag without any intervals",
			data: []byte{0x10, 0x50},
			expected: Reading{
				HeartRate:         80,
				RRIntervalPresent: true,
				RRIntervals:       []uint16{},
			},
		},
		{
			name: "rr flag with single odd byte",
			data: []byte{0x10, 0x50, 0x01},
			expected: Reading{
				HeartRate:         80,
				RRIntervalPresent: true,
				RRIntervals:       []uint16{},
			},
		},
		{
			name: "all fields, 16 bit heart rate",
			data: []byte{0x1F, 0x2c, 0x01, 0xff, 0xff, 0x00, 0x04, 0x01, 0x02},
			expected: Reading{
				HeartRate:         300,
				ContactDetected:   true,
				EnergyExpended:    uint16Ptr(65535),
				RRIntervalPresent: true,
				RRIntervals:       []uint16{1024, 513},
			},
		},
		{
			name: "trailing bytes without rr flag are ignored",
			data: []byte{0x00, 0x50, 0x64, 0x00},
			expected: Reading{
				HeartRate:   80,
				RRIntervals: []uint16{},
			},
		},
	}

	for _, cs := range testCases {
		t.Run(cs.name, func(t *testing.T) {
			reading, err := Decode(cs.data)
			if err != nil {
				t.Fatalf("unexpected error decoding % x: %s", cs.data, err)
			}
			if !reflect.DeepEqual(*reading, cs.expected) {
				t.Fatalf("unexpected reading for % x: want %#v, have %#v", cs.data, cs.expected, *reading)
			}
		})
	}
}

func TestDecodeBufferUnderrun(t *testing.T) {
	var testCases = []struct {
		name string
		data []byte
	}{
		{"nil buffer", nil},
		{"empty buffer", []byte{}},
		{"flags only", []byte{0x00}},
		{"truncated 16 bit heart rate", []byte{0x01, 0x50}},
		{"missing energy expended", []byte{0x08, 0x50}},
		{"truncated energy expended", []byte{0x08, 0x50, 0x0A}},
		{"truncated energy expended after 16 bit heart rate", []byte{0x09, 0x50, 0x00, 0x0A}},
	}

	for _, cs := range testCases {
		t.Run(cs.name, func(t *testing.T) {
			reading, err := Decode(cs.data)
			if !errors.Is(err, ErrBufferUnderrun) {
				t.Fatalf("expected ErrBufferUnderrun for % x, have %v", cs.data, err)
			}
			if reading != nil {
				t.Fatalf("expected no partial reading, have %#v", reading)
			}
		})
	}
}

func TestDecodeHeartRateWidth(t *testing.T) {
	for flags := 0; flags < 0x20; flags++ {
		data := []byte{byte(flags), 0xAB, 0xCD, 0x01, 0x02, 0x03, 0x04}
		reading, err := Decode(data)
		if err != nil {
			t.Fatalf("unexpected error for flags %#x: %s", flags, err)
		}

		expected := uint16(0xAB)
		if flags&0x01 != 0 {
			expected = 0xCDAB
		}
		if reading.HeartRate != expected {
			t.Fatalf("unexpected heart rate for flags %#x: want %d, have %d", flags, expected, reading.HeartRate)
		}
	}
}

func TestDecodeIdempotent(t *testing.T) {
	data := []byte{0x1E, 0x50, 0x0A, 0x00, 0x64, 0x00, 0xC8, 0x00}
	orig := append([]byte(nil), data...)

	first, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated decoding differs: %#v vs. %#v", first, second)
	}
	if !bytes.Equal(data, orig) {
		t.Fatalf("input buffer was modified: % x", data)
	}

	// The reading must not alias the input buffer
	first.RRIntervals[0] = 0
	if second.RRIntervals[0] != 100 {
		t.Fatalf("readings share state")
	}
}

func TestEncodeMeasurement(t *testing.T) {
	var testCases = []struct {
		reading  Reading
		expected []byte
	}{
		{
			reading:  Reading{HeartRate: 80},
			expected: []byte{0x00, 0x50},
		},
		{
			reading:  Reading{HeartRate: 300},
			expected: []byte{0x01, 0x2c, 0x01},
		},
		{
			reading:  Reading{HeartRate: 80, ContactDetected: true},
			expected: []byte{0x06, 0x50},
		},
		{
			reading: Reading{
				HeartRate:         80,
				EnergyExpended:    uint16Ptr(10),
				RRIntervalPresent: true,
				RRIntervals:       []uint16{100, 200},
			},
			expected: []byte{0x18, 0x50, 0x0A, 0x00, 0x64, 0x00, 0xC8, 0x00},
		},
	}

	for _, cs := range testCases {
		data := EncodeMeasurement(cs.reading)
		if !bytes.Equal(data, cs.expected) {
			t.Fatalf("unexpected encoding of %#v: want % x, have % x", cs.reading, cs.expected, data)
		}

		reading, err := Decode(data)
		if err != nil {
			t.Fatalf("failed to decode encoded reading: %s", err)
		}
		if reading.HeartRate != cs.reading.HeartRate ||
			reading.ContactDetected != cs.reading.ContactDetected ||
			reading.RRIntervalPresent != cs.reading.RRIntervalPresent ||
			len(reading.RRIntervals) != len(cs.reading.RRIntervals) {
			t.Fatalf("decoded reading differs: want %#v, have %#v", cs.reading, *reading)
		}
	}
}

func TestParseBase64(t *testing.T) {
	// 0x16 0x50 0x64 0x00: contact detected, 80 bpm, one RR interval
	reading, err := ParseBase64("FlBkAA==")
	if err != nil {
		t.Fatal(err)
	}
	if reading.HeartRate != 80 || !reading.ContactDetected || !reading.RRIntervalPresent {
		t.Fatalf("unexpected reading: %#v", *reading)
	}
	if len(reading.RRIntervals) != 1 || reading.RRIntervals[0] != 100 {
		t.Fatalf("unexpected RR intervals: %v", reading.RRIntervals)
	}

	if _, err := ParseBase64("AAAAA"); !errors.Is(err, ErrInvalidEncodingLength) {
		t.Fatalf("expected ErrInvalidEncodingLength, have %v", err)
	}
	if _, err := ParseBase64("AQ=="); !errors.Is(err, ErrBufferUnderrun) {
		t.Fatalf("expected ErrBufferUnderrun, have %v", err)
	}
}
