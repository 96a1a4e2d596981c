// Package decode turns the wearable's fixed-width binary sensor logs into
// JSON messages and publishes them.
package decode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// scale converts raw signed-16 sensor counts (and raw pressure counts) to
// physical units.
const scale = 100.0

// Format identifies one of the two record layouts the wearable writes.
type Format int

const (
	// FormatAuto selects the layout per file from its byte count.
	FormatAuto Format = iota
	// FormatIMU is the 16-byte layout: uint32 timestamp, six int16 axes.
	FormatIMU
	// FormatIMUPressure is the 20-byte layout: uint32 timestamp, uint32 raw
	// pressure, six int16 axes.
	FormatIMUPressure
)

const (
	imuRecordSize      = 16
	pressureRecordSize = 20
)

// ParseFormat maps a config value to a Format.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return FormatAuto, nil
	case "imu":
		return FormatIMU, nil
	case "imu-pressure":
		return FormatIMUPressure, nil
	default:
		return FormatAuto, fmt.Errorf("unknown record format %q", value)
	}
}

// RecordSize returns the fixed byte width of one record.
func (f Format) RecordSize() int {
	if f == FormatIMUPressure {
		return pressureRecordSize
	}
	return imuRecordSize
}

// detectFormat picks a layout from a file's byte count. Sizes divisible by
// 20 but not by 16 can only be the pressure layout; everything else is read
// as the plain IMU layout (ambiguous multiples of both prefer it, and any
// trailing remainder is handled as truncation).
func detectFormat(size int64) Format {
	if size > 0 && size%pressureRecordSize == 0 && size%imuRecordSize != 0 {
		return FormatIMUPressure
	}
	return FormatIMU
}

// Record is one decoded sensor sample in physical units.
type Record struct {
	TimestampMS  uint32
	HasPressure  bool
	PressurePa   float64
	Acceleration [3]float64
	Gyroscope    [3]float64
}

// parseRecord decodes one little-endian record from buf, which must hold
// exactly format.RecordSize() bytes.
func parseRecord(buf []byte, format Format) Record {
	record := Record{TimestampMS: binary.LittleEndian.Uint32(buf[0:4])}

	offset := 4
	if format == FormatIMUPressure {
		record.HasPressure = true
		record.PressurePa = float64(binary.LittleEndian.Uint32(buf[4:8])) / scale
		offset = 8
	}

	var axes [6]float64
	for i := range axes {
		raw := int16(binary.LittleEndian.Uint16(buf[offset+i*2 : offset+i*2+2]))
		axes[i] = float64(raw) / scale
	}
	record.Acceleration = [3]float64{axes[0], axes[1], axes[2]}
	record.Gyroscope = [3]float64{axes[3], axes[4], axes[5]}
	return record
}

// Payload renders the canonical single-line JSON message. Key order and the
// two-decimal fixed formatting are part of the wire contract, so the message
// is assembled by hand rather than through encoding/json.
func (r Record) Payload() []byte {
	if r.HasPressure {
		return fmt.Appendf(nil,
			`{"timestamp_ms":%d,"pressure_pa":%.2f,"acceleration":[%.2f,%.2f,%.2f],"gyroscope":[%.2f,%.2f,%.2f]}`,
			r.TimestampMS,
			r.PressurePa,
			r.Acceleration[0], r.Acceleration[1], r.Acceleration[2],
			r.Gyroscope[0], r.Gyroscope[1], r.Gyroscope[2],
		)
	}
	return fmt.Appendf(nil,
		`{"timestamp_ms":%d,"acceleration":[%.2f,%.2f,%.2f],"gyroscope":[%.2f,%.2f,%.2f]}`,
		r.TimestampMS,
		r.Acceleration[0], r.Acceleration[1], r.Acceleration[2],
		r.Gyroscope[0], r.Gyroscope[1], r.Gyroscope[2],
	)
}
