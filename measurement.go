package heartbeat

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBufferUnderrun denotes a measurement payload that is shorter than the fields its flags declare
var ErrBufferUnderrun = errors.New("buffer underrun")

// Flags denotes the flags field (first byte) of a heart rate measurement
type Flags byte

const (
	flagUint16Format          Flags = 0x01
	flagContactDetected       Flags = 0x02
	flagContactSupported      Flags = 0x04
	flagEnergyExpendedPresent Flags = 0x08
	flagRRIntervalPresent     Flags = 0x10
)

// Uint16Format returns whether the heart rate value is transmitted as 16 bit integer
func (f Flags) Uint16Format() bool {
	return f&flagUint16Format != 0
}

// ContactSupported returns whether the sensor supports skin contact detection
func (f Flags) ContactSupported() bool {
	return f&flagContactSupported != 0
}

// ContactDetected returns whether the contact bit is set (only meaningful if contact detection
// is supported)
func (f Flags) ContactDetected() bool {
	return f&flagContactDetected != 0
}

// EnergyExpendedPresent returns whether the energy expended field is present
func (f Flags) EnergyExpendedPresent() bool {
	return f&flagEnergyExpendedPresent != 0
}

// RRIntervalPresent returns whether one or more RR intervals are present
func (f Flags) RRIntervalPresent() bool {
	return f&flagRRIntervalPresent != 0
}

// Decode parses a raw heart rate measurement characteristic value (0x2A37)
func Decode(data []byte) (*Reading, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: missing flags field", ErrBufferUnderrun)
	}

	var (
		flags  = Flags(data[0])
		offset = 1
		r      = Reading{
			RRIntervals: []uint16{},
		}
	)

	if flags.Uint16Format() {
		if err := need(data, offset, 2, "heart rate"); err != nil {
			return nil, err
		}
		r.HeartRate = binary.LittleEndian.Uint16(data[offset:])
		offset += 2
	} else {
		if err := need(data, offset, 1, "heart rate"); err != nil {
			return nil, err
		}
		r.HeartRate = uint16(data[offset])
		offset++
	}

	if flags.ContactSupported() {
		r.ContactDetected = flags.ContactDetected()
	}

	if flags.EnergyExpendedPresent() {
		if err := need(data, offset, 2, "energy expended"); err != nil {
			return nil, err
		}
		energy := binary.LittleEndian.Uint16(data[offset:])
		r.EnergyExpended = &energy
		offset += 2
	}

	r.RRIntervalPresent = flags.RRIntervalPresent()
	if r.RRIntervalPresent {

		// A trailing odd byte is dropped
		r.RRIntervals = make([]uint16, 0, (len(data)-offset)/2)
		for ; offset+1 < len(data); offset += 2 {
			r.RRIntervals = append(r.RRIntervals, binary.LittleEndian.Uint16(data[offset:]))
		}
	}

	return &r, nil
}

// EncodeMeasurement serializes a reading into a heart rate measurement characteristic value,
// using the 8 bit heart rate format whenever the value permits
func EncodeMeasurement(r Reading) []byte {
	var flags Flags
	if r.HeartRate > 0xff {
		flags |= flagUint16Format
	}
	if r.ContactDetected {
		flags |= flagContactSupported | flagContactDetected
	}
	if r.EnergyExpended != nil {
		flags |= flagEnergyExpendedPresent
	}
	if r.RRIntervalPresent {
		flags |= flagRRIntervalPresent
	}

	data := make([]byte, 1, 5+2*len(r.RRIntervals))
	data[0] = byte(flags)

	if flags.Uint16Format() {
		data = binary.LittleEndian.AppendUint16(data, r.HeartRate)
	} else {
		data = append(data, byte(r.HeartRate))
	}
	if r.EnergyExpended != nil {
		data = binary.LittleEndian.AppendUint16(data, *r.EnergyExpended)
	}
	if r.RRIntervalPresent {
		for _, rr := range r.RRIntervals {
			data = binary.LittleEndian.AppendUint16(data, rr)
		}
	}

	return data
}

// ParseBase64 decodes a base64 encoded heart rate measurement, as delivered by transports that
// encode characteristic values as strings
func ParseBase64(s string) (*Reading, error) {
	data, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}

	return Decode(data)
}

func need(data []byte, offset, n int, field string) error {
	if offset+n > len(data) {
		return fmt.Errorf("%w: %s needs %d byte(s) at offset %d (data len: %d)", ErrBufferUnderrun, field, n, offset, len(data))
	}
	return nil
}
