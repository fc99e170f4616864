// Package i2c gives register-level access to devices on a Linux i2c-dev bus.
//
// One Bus is opened per adapter (/dev/i2c-N) and shared by every device on
// it; each transaction selects the slave address under the bus lock.
package i2c

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("i2c: bus closed")

// Conn is the register interface device drivers depend on.
type Conn interface {
	// ReadReg writes reg and reads len(buf) bytes back.
	ReadReg(reg byte, buf []byte) error
	// WriteReg writes one byte to reg.
	WriteReg(reg, value byte) error
	// ReadByte reads a single byte without a register prefix.
	ReadByte() (byte, error)
	// Read fills p without a register prefix.
	Read(p []byte) error
	// Write sends raw bytes.
	Write(p []byte) error
	// Addr reports the 7-bit slave address.
	Addr() uint16
}

// transport is the per-platform file handle.
type transport interface {
	setAddr(addr uint16) error
	read(p []byte) (int, error)
	write(p []byte) (int, error)
	close() error
}

// Bus is an opened I2C adapter.
type Bus struct {
	mu     sync.Mutex
	t      transport
	num    int
	closed bool
}

// Open opens /dev/i2c-<num>.
func Open(num int) (*Bus, error) {
	t, err := openTransport(num)
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus %d: %w", num, err)
	}
	return &Bus{t: t, num: num}, nil
}

// Device returns a Conn for the given 7-bit address.
func (b *Bus) Device(addr uint16) Conn {
	return &device{bus: b, addr: addr}
}

// Close releases the adapter. Safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.t.close()
}

// tx runs fn with the slave address selected.
func (b *Bus) tx(addr uint16, fn func(t transport) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.t.setAddr(addr); err != nil {
		return fmt.Errorf("i2c-%d: selecting 0x%02x: %w", b.num, addr, err)
	}
	return fn(b.t)
}

type device struct {
	bus  *Bus
	addr uint16
}

func (d *device) Addr() uint16 { return d.addr }

func (d *device) ReadReg(reg byte, buf []byte) error {
	return d.bus.tx(d.addr, func(t transport) error {
		if _, err := t.write([]byte{reg}); err != nil {
			return fmt.Errorf("i2c 0x%02x: write reg 0x%02x: %w", d.addr, reg, err)
		}
		n, err := t.read(buf)
		if err != nil {
			return fmt.Errorf("i2c 0x%02x: read reg 0x%02x: %w", d.addr, reg, err)
		}
		if n != len(buf) {
			return fmt.Errorf("i2c 0x%02x: short read %d/%d", d.addr, n, len(buf))
		}
		return nil
	})
}

func (d *device) WriteReg(reg, value byte) error {
	return d.Write([]byte{reg, value})
}

func (d *device) ReadByte() (byte, error) {
	var b [1]byte
	err := d.bus.tx(d.addr, func(t transport) error {
		if _, err := t.read(b[:]); err != nil {
			return fmt.Errorf("i2c 0x%02x: read: %w", d.addr, err)
		}
		return nil
	})
	return b[0], err
}

func (d *device) Read(p []byte) error {
	return d.bus.tx(d.addr, func(t transport) error {
		n, err := t.read(p)
		if err != nil {
			return fmt.Errorf("i2c 0x%02x: read: %w", d.addr, err)
		}
		if n != len(p) {
			return fmt.Errorf("i2c 0x%02x: short read %d/%d", d.addr, n, len(p))
		}
		return nil
	})
}

func (d *device) Write(p []byte) error {
	return d.bus.tx(d.addr, func(t transport) error {
		if _, err := t.write(p); err != nil {
			return fmt.Errorf("i2c 0x%02x: write: %w", d.addr, err)
		}
		return nil
	})
}
