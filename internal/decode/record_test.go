package decode

import (
	"encoding/binary"
	"testing"
)

func imuRecordBytes(timestamp uint32, axes [6]int16) []byte {
	buf := make([]byte, imuRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], timestamp)
	for i, v := range axes {
		binary.LittleEndian.PutUint16(buf[4+i*2:], uint16(v))
	}
	return buf
}

func pressureRecordBytes(timestamp, pressure uint32, axes [6]int16) []byte {
	buf := make([]byte, pressureRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], timestamp)
	binary.LittleEndian.PutUint32(buf[4:8], pressure)
	for i, v := range axes {
		binary.LittleEndian.PutUint16(buf[8+i*2:], uint16(v))
	}
	return buf
}

func TestParseRecordIMULiteral(t *testing.T) {
	buf := imuRecordBytes(1000, [6]int16{250, -100, 0, 50, 0, -50})
	record := parseRecord(buf, FormatIMU)

	want := `{"timestamp_ms":1000,"acceleration":[2.50,-1.00,0.00],"gyroscope":[0.50,0.00,-0.50]}`
	if got := string(record.Payload()); got != want {
		t.Fatalf("payload mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestParseRecordPressure(t *testing.T) {
	buf := pressureRecordBytes(42, 10132500, [6]int16{100, 0, -100, 0, 0, 0})
	record := parseRecord(buf, FormatIMUPressure)

	if !record.HasPressure {
		t.Fatal("expected pressure field")
	}
	if record.PressurePa != 101325.0 {
		t.Fatalf("pressure = %v, want 101325", record.PressurePa)
	}
	want := `{"timestamp_ms":42,"pressure_pa":101325.00,"acceleration":[1.00,0.00,-1.00],"gyroscope":[0.00,0.00,0.00]}`
	if got := string(record.Payload()); got != want {
		t.Fatalf("payload mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		value   string
		want    Format
		wantErr bool
	}{
		{"auto", FormatAuto, false},
		{"", FormatAuto, false},
		{"imu", FormatIMU, false},
		{"IMU-Pressure", FormatIMUPressure, false},
		{"csv", FormatAuto, true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.value)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseFormat(%q) should fail", tc.value)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", tc.value, err)
		}
		if got != tc.want {
			t.Fatalf("ParseFormat(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		size int64
		want Format
	}{
		{16, FormatIMU},
		{32, FormatIMU},
		{20, FormatIMUPressure},
		{60, FormatIMUPressure},
		{80, FormatIMU}, // divisible by both: prefer the plain layout
		{0, FormatIMU},
		{7, FormatIMU},
	}
	for _, tc := range cases {
		if got := detectFormat(tc.size); got != tc.want {
			t.Fatalf("detectFormat(%d) = %v, want %v", tc.size, got, tc.want)
		}
	}
}
