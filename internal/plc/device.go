package plc

import (
	"fmt"
	"sync"
)

// Device is a line-scoped equipment handle. Non-zero return codes denote
// device-level failure; the call interface is local and synchronous.
type Device interface {
	// Open acquires the device handle.
	Open() (code int)
	// Close releases the handle. Safe to call on a closed device.
	Close() (code int)
	// ReadRegister reads a named register.
	ReadRegister(name string) (value int, code int)
	// WriteRegister writes a named register.
	WriteRegister(name string, value int) (code int)
}

// DeviceError reports a non-zero device return code.
type DeviceError struct {
	Line     string
	Op       string // "open", "read", "write"
	Register string // empty for open/close
	Code     int
}

func (e *DeviceError) Error() string {
	if e.Register != "" {
		return fmt.Sprintf("line %s: device %s %s failed (code 0x%x)", e.Line, e.Op, e.Register, e.Code)
	}
	return fmt.Sprintf("line %s: device %s failed (code 0x%x)", e.Line, e.Op, e.Code)
}

// SimDevice is the in-memory device used when no physical equipment is
// attached. It behaves like a healthy line: the heartbeat register reads the
// expected live value while the handle is open, and a dispatched action
// (mode+count written) raises the done register after a fixed number of
// completion polls.
type SimDevice struct {
	mu        sync.Mutex
	open      bool
	registers map[string]int

	// registers driving the simulated behavior
	heartbeatReg string
	modeReg      string
	doneReg      string

	// polls remaining until a dispatched action completes
	pending int
	// PollsPerAction is how many done-register reads an action takes to
	// complete. Zero means complete on the first poll.
	PollsPerAction int
}

// NewSimDevice builds a simulated device wired to the given register names.
func NewSimDevice(heartbeatReg, modeReg, doneReg string) *SimDevice {
	return &SimDevice{
		registers:      make(map[string]int),
		heartbeatReg:   heartbeatReg,
		modeReg:        modeReg,
		doneReg:        doneReg,
		PollsPerAction: 3,
	}
}

// Open implements Device.
func (d *SimDevice) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	return 0
}

// Close implements Device.
func (d *SimDevice) Close() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return 0
}

// ReadRegister implements Device. Reading from a closed device fails.
func (d *SimDevice) ReadRegister(name string) (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, 1
	}
	if name == d.heartbeatReg {
		return 1, 0
	}
	if name == d.doneReg && d.registers[d.modeReg] != 0 {
		if d.pending > 0 {
			d.pending--
			return 0, 0
		}
		return 1, 0
	}
	return d.registers[name], 0
}

// WriteRegister implements Device. Writing the mode register arms the
// simulated action countdown.
func (d *SimDevice) WriteRegister(name string, value int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 1
	}
	d.registers[name] = value
	if name == d.modeReg && value != 0 {
		d.pending = d.PollsPerAction
	}
	return 0
}
