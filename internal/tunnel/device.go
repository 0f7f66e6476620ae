// Package tunnel owns the virtual network interface and relays packets
// between it and the peer channel.
package tunnel

import (
	"errors"
	"fmt"
	"sync"

	"golang.zx2c4.com/wireguard/tun"

	"github.com/1ureka/wvn/internal/config"
	"github.com/1ureka/wvn/internal/util"
)

// ErrInterfaceIO wraps every read or write failure on the virtual interface.
var ErrInterfaceIO = errors.New("interface I/O error")

// FrameSizeError reports a packet that did not fit the caller's buffer. The
// packet has been discarded; the interface is still usable.
type FrameSizeError struct {
	Size int
	Max  int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("packet of %d bytes exceeds frame size %d", e.Size, e.Max)
}

// bufOffset is the headroom left in front of each packet buffer. The Linux
// driver needs it for the virtio-net header.
const bufOffset = 16

// Device is an owned TUN device. Reads are serialized by one guard and
// writes by another, each held for a single device call, so the two relay
// directions never interleave a syscall and never wait on each other.
type Device struct {
	dev  tun.Device
	name string
	mtu  int

	rmu    sync.Mutex
	rbufs  [][]byte
	rsizes []int
	next   int
	count  int

	wmu  sync.Mutex
	wbuf []byte

	closeOnce sync.Once
	closeErr  error
}

// Open creates the TUN device described by cfg and applies its address,
// MTU and up state.
func Open(cfg config.Interface) (*Device, error) {
	dev, err := tun.CreateTUN(cfg.Name, cfg.MTU)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrInterfaceIO, cfg.Name, err)
	}

	d, err := NewDevice(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}

	if err := configure(d.name, cfg); err != nil {
		d.Close()
		return nil, fmt.Errorf("configure %s: %w", d.name, err)
	}

	util.LogInfo("Interface %s up: %s, mtu %d", d.name, cfg.Address, d.mtu)
	return d, nil
}

// NewDevice wraps an already created tun.Device, such as a userspace one.
func NewDevice(dev tun.Device) (*Device, error) {
	name, err := dev.Name()
	if err != nil {
		return nil, fmt.Errorf("%w: name: %w", ErrInterfaceIO, err)
	}
	mtu, err := dev.MTU()
	if err != nil {
		return nil, fmt.Errorf("%w: mtu: %w", ErrInterfaceIO, err)
	}

	batch := dev.BatchSize()
	if batch < 1 {
		batch = 1
	}
	d := &Device{
		dev:    dev,
		name:   name,
		mtu:    mtu,
		rbufs:  make([][]byte, batch),
		rsizes: make([]int, batch),
		wbuf:   make([]byte, bufOffset+mtu),
	}
	for i := range d.rbufs {
		d.rbufs[i] = make([]byte, bufOffset+mtu)
	}

	go d.drainEvents()

	return d, nil
}

func (d *Device) drainEvents() {
	for ev := range d.dev.Events() {
		switch {
		case ev&tun.EventUp != 0:
			util.LogDebug("Interface %s: up", d.name)
		case ev&tun.EventDown != 0:
			util.LogWarning("Interface %s went down", d.name)
		case ev&tun.EventMTUUpdate != 0:
			util.LogDebug("Interface %s: mtu changed", d.name)
		}
	}
}

// Name returns the OS name of the interface.
func (d *Device) Name() string { return d.name }

// MTU returns the MTU the device was created with.
func (d *Device) MTU() int { return d.mtu }

// Read copies the next IP packet into p. A packet larger than p is dropped
// and reported as *FrameSizeError. The driver may hand over several packets
// per call; they are returned one at a time. A driver error that still
// delivered packets is logged and those packets are kept.
func (d *Device) Read(p []byte) (int, error) {
	d.rmu.Lock()
	defer d.rmu.Unlock()

	for d.next >= d.count {
		n, err := d.dev.Read(d.rbufs, d.rsizes, bufOffset)
		if n == 0 && err != nil {
			return 0, fmt.Errorf("%w: read %s: %w", ErrInterfaceIO, d.name, err)
		}
		if err != nil {
			util.LogWarning("Interface %s read: %v (kept %d packets)", d.name, err, n)
		}
		d.next, d.count = 0, n
	}

	i := d.next
	d.next++

	size := d.rsizes[i]
	if size > len(p) {
		return 0, &FrameSizeError{Size: size, Max: len(p)}
	}
	return copy(p, d.rbufs[i][bufOffset:bufOffset+size]), nil
}

// Write writes one IP packet.
func (d *Device) Write(p []byte) (int, error) {
	d.wmu.Lock()
	defer d.wmu.Unlock()

	if need := bufOffset + len(p); need > len(d.wbuf) {
		d.wbuf = make([]byte, need)
	}
	buf := d.wbuf[:bufOffset+len(p)]
	copy(buf[bufOffset:], p)

	if _, err := d.dev.Write([][]byte{buf}, bufOffset); err != nil {
		return 0, fmt.Errorf("%w: write %s: %w", ErrInterfaceIO, d.name, err)
	}
	return len(p), nil
}

// Close closes the device, unblocking a pending Read.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.dev.Close()
	})
	return d.closeErr
}
