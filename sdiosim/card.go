// Package sdiosim simulates a Sequans SDIO card and its host platform. Card
// implements the register and FIFO behaviour the transport engine relies on so
// the engine can run without hardware.
package sdiosim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/soypat/sqnsdio/sqn"
)

var (
	errDisabled = errors.New("sdiosim: function disabled")
	errNoPDU    = errors.New("sdiosim: read fifo empty")
	errBadAddr  = errors.New("sdiosim: unmapped register")
	errBlockLen = errors.New("sdiosim: transfer not block aligned")
)

type rxEntry struct {
	size int
	data []byte
}

// Card is a simulated SQN card function 1. The zero value is not usable, see NewCard.
type Card struct {
	claim sync.Mutex
	mu    sync.Mutex

	vendor, device uint16
	enabled        bool
	irq            func()

	itEnLSB, itEnMSB         uint8
	itStatusLSB, itStatusMSB uint8
	rdWatermark              uint16
	fwReady                  uint8
	bootFromSPI              uint8
	ioAbort                  uint8

	wrLevels []uint16
	rx       []rxEntry
	cur      *rxEntry
	sent     [][]byte

	faults   map[uint32][]error
	accesses map[uint32]int
	onRead   func(addr uint32)
}

// NewCard returns a disabled card with the given SDIO device ID, the
// firmware running from SPI flash and 8 free write FIFO slots.
func NewCard(device uint16) *Card {
	return &Card{
		vendor:      sqn.SDIO_VENDOR_ID_SEQUANS,
		device:      device,
		fwReady:     1,
		bootFromSPI: 1,
		wrLevels:    []uint16{8},
		faults:      make(map[uint32][]error),
		accesses:    make(map[uint32]int),
	}
}

func (c *Card) Num() uint8     { return 1 }
func (c *Card) Vendor() uint16 { return c.vendor }
func (c *Card) Device() uint16 { return c.device }
func (c *Card) Claim()         { c.claim.Lock() }
func (c *Card) Release()       { c.claim.Unlock() }

func (c *Card) Enable() error {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
	return nil
}

func (c *Card) Disable() error {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	return nil
}

func (c *Card) ClaimIRQ(handler func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.irq != nil {
		return errors.New("sdiosim: irq already claimed")
	}
	c.irq = handler
	return nil
}

func (c *Card) ReleaseIRQ() error {
	c.mu.Lock()
	c.irq = nil
	c.mu.Unlock()
	return nil
}

// access records an access to addr and pops an injected fault. Called with c.mu held.
func (c *Card) access(addr uint32) error {
	c.accesses[addr]++
	if q := c.faults[addr]; len(q) > 0 {
		c.faults[addr] = q[1:]
		return q[0]
	}
	if !c.enabled {
		return errDisabled
	}
	return nil
}

func (c *Card) read(addr uint32) (uint32, error) {
	c.mu.Lock()
	hook := c.onRead
	v, err := c.readLocked(addr)
	c.mu.Unlock()
	if hook != nil {
		hook(addr)
	}
	return v, err
}

func (c *Card) readLocked(addr uint32) (uint32, error) {
	if err := c.access(addr); err != nil {
		return 0, err
	}
	switch addr {
	case sqn.SQN_SDIO_IT_EN_LSBS:
		return uint32(c.itEnLSB), nil
	case sqn.SQN_SDIO_IT_EN_MSBS:
		return uint32(c.itEnMSB), nil
	case sqn.SQN_SDIO_IT_STATUS_LSBS:
		return uint32(c.itStatusLSB), nil
	case sqn.SQN_SDIO_IT_STATUS_MSBS:
		return uint32(c.itStatusMSB), nil
	case sqn.SQN_SDIO_WR_FIFO_LEVEL:
		level := c.wrLevels[0]
		if len(c.wrLevels) > 1 {
			c.wrLevels = c.wrLevels[1:]
		}
		return sqn.PutWrFIFOLevel(uint32(level)), nil
	case sqn.SQN_SDIO_RD_FIFO_LEVEL(sqn.DataFIFO):
		return uint32(len(c.rx)), nil
	case sqn.SQN_SDIO_RDLEN_FIFO(sqn.DataFIFO):
		// Reading the length pops the PDU whether or not its payload is read.
		c.cur = nil
		if len(c.rx) == 0 {
			return 0, nil
		}
		e := c.rx[0]
		c.rx = c.rx[1:]
		c.cur = &e
		return uint32(e.size), nil
	case sqn.SQN_SDIO_WM_RD_FIFO(sqn.DataFIFO):
		return uint32(c.rdWatermark), nil
	case sqn.SQN_SDIO_RSTN_WR_FIFO(sqn.DataFIFO):
		return uint32(c.fwReady), nil
	case sqn.SQN_H_BOOT_FROM_SPI:
		return uint32(c.bootFromSPI), nil
	case sqn.SQN_H_CISTPLMID_MANF:
		return uint32(c.vendor), nil
	case sqn.SQN_H_CISTPLMID_CARD:
		return uint32(c.device), nil
	}
	return 0, fmt.Errorf("%w %#x", errBadAddr, addr)
}

func (c *Card) write(addr uint32, v uint32) error {
	c.mu.Lock()
	handler, err := c.writeLocked(addr, v)
	c.mu.Unlock()
	if err == nil && handler != nil {
		handler()
	}
	return err
}

// writeLocked returns the irq handler when the write unmasks a pending interrupt.
func (c *Card) writeLocked(addr uint32, v uint32) (func(), error) {
	if err := c.access(addr); err != nil {
		return nil, err
	}
	switch addr {
	case sqn.SQN_SDIO_IT_EN_LSBS:
		c.itEnLSB = uint8(v)
		if c.itEnLSB&c.itStatusLSB != 0 {
			return c.irq, nil
		}
	case sqn.SQN_SDIO_IT_EN_MSBS:
		c.itEnMSB = uint8(v)
	case sqn.SQN_SDIO_IT_STATUS_LSBS:
		c.itStatusLSB &^= uint8(v)
		// The read watermark interrupt is level triggered.
		wm := max(1, int(c.rdWatermark))
		if uint8(v)&uint8(sqn.IRQRdFIFO2WM) != 0 && len(c.rx) >= wm {
			c.itStatusLSB |= uint8(sqn.IRQRdFIFO2WM)
			if c.itEnLSB&uint8(sqn.IRQRdFIFO2WM) != 0 {
				return c.irq, nil
			}
		}
	case sqn.SQN_SDIO_IT_STATUS_MSBS:
		c.itStatusMSB &^= uint8(v)
	case sqn.SQN_SDIO_WM_RD_FIFO(sqn.DataFIFO):
		c.rdWatermark = uint16(v)
	default:
		return nil, fmt.Errorf("%w %#x", errBadAddr, addr)
	}
	return nil, nil
}

func (c *Card) Read8(addr uint32) (uint8, error) {
	v, err := c.read(addr)
	return uint8(v), err
}

func (c *Card) Read16(addr uint32) (uint16, error) {
	v, err := c.read(addr)
	return uint16(v), err
}

func (c *Card) Read32(addr uint32) (uint32, error) { return c.read(addr) }

func (c *Card) Write8(addr uint32, v uint8) error { return c.write(addr, uint32(v)) }

func (c *Card) Write16(addr uint32, v uint16) error { return c.write(addr, uint32(v)) }

// WriteF0 writes a function 0 (CCCR) register.
func (c *Card) WriteF0(addr uint32, v uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accesses[addr]++
	if addr != sqn.SDIO_CCCR_IO_ABORT {
		return fmt.Errorf("%w f0 %#x", errBadAddr, addr)
	}
	c.ioAbort = v
	return nil
}

func (c *Card) ReadFIFO(addr uint32, dst []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.access(addr); err != nil {
		return err
	}
	if addr != sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO) {
		return fmt.Errorf("%w %#x", errBadAddr, addr)
	}
	if c.cur == nil {
		return errNoPDU
	}
	n := copy(dst, c.cur.data)
	clear(dst[n:])
	c.cur = nil
	return nil
}

func (c *Card) WriteFIFO(addr uint32, src []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.access(addr); err != nil {
		return err
	}
	if addr != sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO) {
		return fmt.Errorf("%w %#x", errBadAddr, addr)
	}
	if len(src)%sqn.BlockSize != 0 {
		return errBlockLen
	}
	c.sent = append(c.sent, append([]byte(nil), src...))
	return nil
}
