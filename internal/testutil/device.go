package testutil

import "sync"

// ScriptedDevice is a plc.Device whose register reads follow test-provided
// scripts. Heartbeat scripts model flaky links; the done script models slow
// or stuck actions. When a script runs out its last value repeats.
//
// Thread-safety: all methods are safe for concurrent use.
type ScriptedDevice struct {
	mu sync.Mutex

	open      bool
	registers map[string]int
	writes    []Write

	// Reads holds per-register scripts: successive reads of a register
	// consume successive entries.
	Reads map[string][]ReadResult

	// OpenCode and CloseCode are returned by Open/Close. Zero is success.
	OpenCode  int
	CloseCode int
	// WriteCode is returned by every WriteRegister call.
	WriteCode int

	reads     map[string]int // per-register read cursor
	readCount map[string]int // total reads per register, never reset
}

// ReadResult is one scripted register read.
type ReadResult struct {
	Value int
	Code  int
}

// Write records one WriteRegister call.
type Write struct {
	Register string
	Value    int
}

// NewScriptedDevice creates a device with empty scripts: every unscripted
// read returns the last written value with a zero code.
func NewScriptedDevice() *ScriptedDevice {
	return &ScriptedDevice{
		registers: make(map[string]int),
		Reads:     make(map[string][]ReadResult),
		reads:     make(map[string]int),
		readCount: make(map[string]int),
	}
}

// Script sets the read script for one register.
func (d *ScriptedDevice) Script(register string, results ...ReadResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Reads[register] = results
	d.reads[register] = 0
}

// Open implements plc.Device.
func (d *ScriptedDevice) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenCode == 0 {
		d.open = true
	}
	return d.OpenCode
}

// Close implements plc.Device.
func (d *ScriptedDevice) Close() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return d.CloseCode
}

// IsOpen reports whether the handle is open.
func (d *ScriptedDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// ReadRegister implements plc.Device.
func (d *ScriptedDevice) ReadRegister(name string) (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readCount[name]++
	script, ok := d.Reads[name]
	if !ok || len(script) == 0 {
		return d.registers[name], 0
	}
	i := d.reads[name]
	if i >= len(script) {
		i = len(script) - 1
	} else {
		d.reads[name]++
	}
	return script[i].Value, script[i].Code
}

// WriteRegister implements plc.Device and records the write.
func (d *ScriptedDevice) WriteRegister(name string, value int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.WriteCode != 0 {
		return d.WriteCode
	}
	d.registers[name] = value
	d.writes = append(d.writes, Write{Register: name, Value: value})
	return 0
}

// ReadCount returns how many times a register has been read.
func (d *ScriptedDevice) ReadCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readCount[name]
}

// Writes returns a copy of every recorded write in order.
func (d *ScriptedDevice) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}
