// Package ddci2c is the raw I²C primitive (spec.md §4.3): address-set,
// write, read, and combined write/read against an open bus fd, via
// either the IOCTL(I2C_RDWR) strategy or the classic
// ioctl(I2C_SLAVE)+read/write strategy. Grounded on
// max72bra-danklinux/internal/server/brightness/ddc.go (the ioctl
// plumbing and the I2C_SLAVE constant) and on the periph.io sysfs-i2c
// driver (other_examples/2ccaf5d8_google-periph__host-sysfs-i2c.go.go)
// for the I2C_RDWR message-array shape.
package ddci2c

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/AvengeMedia/ddcgo/internal/ddcstats"
	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/i2c"
)

// Strategy selects how a Device performs its four ops (spec.md §4.3).
type Strategy int

const (
	// StrategyIOCTL issues one ioctl(I2C_RDWR) per write/read or combined
	// write-then-read, letting the kernel hold the bus across the
	// repeated START.
	StrategyIOCTL Strategy = iota
	// StrategyFileIO sets the target address with ioctl(I2C_SLAVE) once,
	// then uses plain write(2)/read(2).
	StrategyFileIO
)

// Device is one open /dev/i2c-N handle plus its selected strategy.
// A Device is not safe for concurrent use from multiple goroutines
// without external synchronization; internal/ddclock is what
// guarantees at most one live Device per physical bus.
type Device struct {
	f        *os.File
	busNo    int
	addr     uint16
	strategy Strategy

	mu sync.Mutex
}

var _ i2c.Bus = (*Device)(nil) // the core transport doubles as a periph.io i2c.Bus

// Open opens /dev/i2c-<busNo> and returns a Device using the requested
// strategy. No address is set; callers must call SetAddr (or rely on Tx,
// which sets it per-call) before Write/Read.
func Open(busNo int, strategy Strategy) (*Device, error) {
	path := fmt.Sprintf("/dev/i2c-%d", busNo)
	start := time.Now()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	ddcstats.RecordIOEvent(ddcstats.IOEvent{Type: ddcstats.IOOpen, Location: path, StartNS: start.UnixNano(), EndNS: time.Now().UnixNano()})
	if err != nil {
		return nil, mapOpenErr(err)
	}
	return &Device{f: f, busNo: busNo, strategy: strategy}, nil
}

func mapOpenErr(err error) error {
	if os.IsNotExist(err) {
		return ddcstatus.ENOENT
	}
	if os.IsPermission(err) {
		return ddcstatus.EACCES
	}
	if pe, ok := err.(*os.PathError); ok {
		if errno, ok := pe.Err.(unix.Errno); ok {
			return ddcstatus.FromErrno(int(errno))
		}
	}
	return err
}

// Close closes the underlying fd.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

// Fd returns the raw file descriptor, for callers (the EDID reader, the
// initial-checks probe) that need to issue ioctls this package doesn't
// otherwise expose.
func (d *Device) Fd() uintptr { return d.f.Fd() }

// BusNo returns the bus number this Device was opened against.
func (d *Device) BusNo() int { return d.busNo }

// SetAddr targets addr for subsequent FILEIO-strategy operations. It is
// a no-op (but still recorded) under the IOCTL strategy, which carries
// the address in every message instead.
func (d *Device) SetAddr(addr byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addr = uint16(addr)
	if d.strategy == StrategyFileIO {
		return d.ioctlSetSlave(addr)
	}
	return nil
}

func (d *Device) ioctlSetSlave(addr byte) error {
	start := time.Now()
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), i2cSlave, uintptr(addr))
	ddcstats.RecordIOEvent(ddcstats.IOEvent{Type: ddcstats.IOIoctl, Location: "I2C_SLAVE", StartNS: start.UnixNano(), EndNS: time.Now().UnixNano()})
	if errno != 0 {
		return ddcstatus.FromErrno(int(errno))
	}
	return nil
}

// WriteBytes writes data to the device at the currently set address.
func (d *Device) WriteBytes(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.strategy {
	case StrategyIOCTL:
		return d.ioctlTransfer(d.addr, data, nil)
	default:
		return d.fileioWrite(data)
	}
}

// ReadBytes reads up to n bytes from the device at the currently set
// address.
func (d *Device) ReadBytes(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, n)
	switch d.strategy {
	case StrategyIOCTL:
		if err := d.ioctlTransfer(d.addr, nil, buf); err != nil {
			return nil, err
		}
		return buf, nil
	default:
		return d.fileioRead(buf)
	}
}

// WriteThenRead performs a combined write-then-read exchange: under the
// IOCTL strategy this is one syscall with a repeated START; under
// FILEIO it is a write(2) immediately followed by a read(2) (the caller
// is responsible for any inter-op sleep via internal/ddcsleep).
func (d *Device) WriteThenRead(w []byte, readLen int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, readLen)
	switch d.strategy {
	case StrategyIOCTL:
		if err := d.ioctlTransfer(d.addr, w, buf); err != nil {
			return nil, err
		}
		return buf, nil
	default:
		if err := d.fileioWrite(w); err != nil {
			return nil, err
		}
		n, err := d.fileioReadInto(buf)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
}

// Tx implements periph.io/x/conn/v3/i2c.Bus, letting any periph
// peripheral driver address this transport directly without an
// adapter. addr is the 7-bit slave address.
func (d *Device) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addr = addr
	switch d.strategy {
	case StrategyIOCTL:
		return d.ioctlTransfer(addr, w, r)
	default:
		if err := d.ioctlSetSlave(byte(addr)); err != nil {
			return err
		}
		if len(w) > 0 {
			if err := d.fileioWrite(w); err != nil {
				return err
			}
		}
		if len(r) > 0 {
			_, err := d.fileioReadInto(r)
			return err
		}
		return nil
	}
}

func (d *Device) fileioWrite(data []byte) error {
	start := time.Now()
	n, err := d.f.Write(data)
	ddcstats.RecordIOEvent(ddcstats.IOEvent{Type: ddcstats.IOWrite, Location: "write", StartNS: start.UnixNano(), EndNS: time.Now().UnixNano()})
	if err != nil {
		return mapSyscallErr(err)
	}
	if n != len(data) {
		return ddcstatus.EIO
	}
	return nil
}

func (d *Device) fileioRead(buf []byte) ([]byte, error) {
	n, err := d.fileioReadInto(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (d *Device) fileioReadInto(buf []byte) (int, error) {
	start := time.Now()
	n, err := d.f.Read(buf)
	ddcstats.RecordIOEvent(ddcstats.IOEvent{Type: ddcstats.IORead, Location: "read", StartNS: start.UnixNano(), EndNS: time.Now().UnixNano()})
	if err != nil {
		return 0, mapSyscallErr(err)
	}
	return n, nil
}

func mapSyscallErr(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		if errno, ok := pe.Err.(unix.Errno); ok {
			return ddcstatus.FromErrno(int(errno))
		}
	}
	if errno, ok := err.(unix.Errno); ok {
		return ddcstatus.FromErrno(int(errno))
	}
	return err
}
