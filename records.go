package endolight

import (
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
)

const (
	// FrameIDReset tells the device to discard all queued work and reinitialize
	FrameIDReset int32 = -1
	// FrameIDError marks a reading produced when the device had no command to fire
	FrameIDError int32 = -2

	// PulseCommandSize is the encoded size of a PulseCommand in bytes
	PulseCommandSize = 4 + 2*NumLaserDiodes*2
	// MonitorReadingSize is the encoded size of a MonitorReading in bytes
	MonitorReadingSize = 4 + 2*NumPhotoDiodes*2
)

var ErrShortRecord = errors.New("short record")

// PulseCommand is sent from the host to the device. PulseWidths are microseconds indexed by
// parity*NumLaserDiodes + channel.
type PulseCommand struct {
	FrameID     int32
	PulseWidths [2 * NumLaserDiodes]uint16
}

// ResetCommand returns the command that returns the device to its uninitialized state
func ResetCommand() PulseCommand {
	return PulseCommand{FrameID: FrameIDReset}
}

// IsReset reports whether this command is the RESET sentinel
func (c PulseCommand) IsReset() bool {
	return c.FrameID == FrameIDReset
}

// Width returns the pulse width for a channel in a field
func (c PulseCommand) Width(f Field, channel int) uint16 {
	return c.PulseWidths[int(f)*NumLaserDiodes+channel]
}

// SetWidth sets the pulse width for a channel in a field
func (c *PulseCommand) SetWidth(f Field, channel int, width uint16) {
	c.PulseWidths[int(f)*NumLaserDiodes+channel] = width
}

// AppendBinary appends the little-endian wire encoding
func (c PulseCommand) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, uint32(c.FrameID))
	for _, w := range c.PulseWidths {
		b = binary.LittleEndian.AppendUint16(b, w)
	}
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler
func (c PulseCommand) MarshalBinary() ([]byte, error) {
	return c.AppendBinary(make([]byte, 0, PulseCommandSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Bytes beyond PulseCommandSize are ignored.
func (c *PulseCommand) UnmarshalBinary(b []byte) error {
	if len(b) < PulseCommandSize {
		return ErrShortRecord
	}
	c.FrameID = int32(binary.LittleEndian.Uint32(b))
	for i := range c.PulseWidths {
		c.PulseWidths[i] = binary.LittleEndian.Uint16(b[4+2*i:])
	}
	return nil
}

// String formats the command as a comma-separated log payload: "fid,pw0,pw1,..."
func (c PulseCommand) String() string {
	return joinRecord(c.FrameID, c.PulseWidths[:])
}

// MonitorReading is sent from the device to the host. Voltages are raw ADC samples indexed by
// parity*NumPhotoDiodes + channel.
type MonitorReading struct {
	FrameID  int32
	Voltages [2 * NumPhotoDiodes]uint16
}

// ErrorReading returns the reading emitted on a command queue underrun
func ErrorReading() MonitorReading {
	return MonitorReading{FrameID: FrameIDError}
}

// IsError reports whether this reading is the ERROR sentinel
func (r MonitorReading) IsError() bool {
	return r.FrameID == FrameIDError
}

// AppendBinary appends the little-endian wire encoding
func (r MonitorReading) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, uint32(r.FrameID))
	for _, v := range r.Voltages {
		b = binary.LittleEndian.AppendUint16(b, v)
	}
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler
func (r MonitorReading) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, MonitorReadingSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Bytes beyond MonitorReadingSize are ignored.
func (r *MonitorReading) UnmarshalBinary(b []byte) error {
	if len(b) < MonitorReadingSize {
		return ErrShortRecord
	}
	r.FrameID = int32(binary.LittleEndian.Uint32(b))
	for i := range r.Voltages {
		r.Voltages[i] = binary.LittleEndian.Uint16(b[4+2*i:])
	}
	return nil
}

// String formats the reading as a comma-separated log payload: "fid,v0,v1,..."
func (r MonitorReading) String() string {
	return joinRecord(r.FrameID, r.Voltages[:])
}

func joinRecord(fid int32, values []uint16) string {
	b := strconv.AppendInt(nil, int64(fid), 10)
	for _, v := range values {
		b = append(b, ',')
		b = strconv.AppendUint(b, uint64(v), 10)
	}
	return string(b)
}

// ParsePulseCommand parses the log payload produced by PulseCommand.String
func ParsePulseCommand(s string) (PulseCommand, error) {
	var c PulseCommand
	fid, err := splitRecord(s, c.PulseWidths[:])
	c.FrameID = fid
	return c, err
}

// ParseMonitorReading parses the log payload produced by MonitorReading.String
func ParseMonitorReading(s string) (MonitorReading, error) {
	var r MonitorReading
	fid, err := splitRecord(s, r.Voltages[:])
	r.FrameID = fid
	return r, err
}

func splitRecord(s string, values []uint16) (int32, error) {
	fields := strings.Split(s, ",")
	if len(fields) != len(values)+1 {
		return 0, errors.New("expected " + strconv.Itoa(len(values)+1) + " fields, got " + strconv.Itoa(len(fields)))
	}

	fid, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 32)
	if err != nil {
		return 0, errors.New("invalid frame id: " + err.Error())
	}

	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return 0, errors.New("invalid value: " + err.Error())
		}
		values[i] = uint16(v)
	}
	return int32(fid), nil
}
