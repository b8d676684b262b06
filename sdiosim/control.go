package sdiosim

import (
	"github.com/soypat/sqnsdio/sqn"
)

// Receive queues an inbound PDU carrying frame and raises the read FIFO
// watermark interrupt.
func (c *Card) Receive(frame []byte) {
	c.ReceiveRaw(len(frame), frame)
}

// ReceiveRaw queues an inbound PDU whose length register reads size
// regardless of the length of data.
func (c *Card) ReceiveRaw(size int, data []byte) {
	c.mu.Lock()
	c.rx = append(c.rx, rxEntry{size: size, data: append([]byte(nil), data...)})
	c.mu.Unlock()
	c.Raise(sqn.IRQRdFIFO2WM)
}

// Queue queues inbound PDUs without raising an interrupt.
func (c *Card) Queue(frames ...[]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range frames {
		c.rx = append(c.rx, rxEntry{size: len(f), data: append([]byte(nil), f...)})
	}
}

// Raise sets LSB status bits and calls the interrupt handler if any of them is enabled.
func (c *Card) Raise(bits sqn.IRQ) {
	c.mu.Lock()
	c.itStatusLSB |= uint8(bits)
	handler := c.irq
	fire := c.itEnLSB&uint8(bits) != 0 && c.enabled
	c.mu.Unlock()
	if fire && handler != nil {
		handler()
	}
}

// RaiseMSB sets MSB status bits and calls the interrupt handler.
func (c *Card) RaiseMSB(bits uint8) {
	c.mu.Lock()
	c.itStatusMSB |= bits
	handler := c.irq
	c.mu.Unlock()
	if handler != nil {
		handler()
	}
}

// Sent returns the payloads of PDUs written by the host so far, in order.
// PDUs that fail to decode are returned as is.
func (c *Card) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, 0, len(c.sent))
	for _, pdu := range c.sent {
		payload, err := sqn.Decode(pdu)
		if err != nil {
			payload = pdu
		}
		out = append(out, payload)
	}
	return out
}

// SentPDUs returns the raw PDUs written by the host.
func (c *Card) SentPDUs() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// SetWrLevels sets the free slot readings of the write FIFO level register.
// Each read consumes one value, the last one repeats.
func (c *Card) SetWrLevels(levels ...uint16) {
	if len(levels) == 0 {
		panic("sdiosim: no levels")
	}
	c.mu.Lock()
	c.wrLevels = append([]uint16(nil), levels...)
	c.mu.Unlock()
}

// SetFirmwareReady sets the reset write FIFO flag read as firmware ready.
func (c *Card) SetFirmwareReady(ready bool) {
	c.mu.Lock()
	c.fwReady = b2u8(ready)
	c.mu.Unlock()
}

// SetBootFromHost makes the card report it waits for the host to load firmware.
func (c *Card) SetBootFromHost(host bool) {
	c.mu.Lock()
	c.bootFromSPI = b2u8(!host)
	c.mu.Unlock()
}

// InjectFault makes the next accesses to addr fail with errs, one per access.
func (c *Card) InjectFault(addr uint32, errs ...error) {
	c.mu.Lock()
	c.faults[addr] = append(c.faults[addr], errs...)
	c.mu.Unlock()
}

// OnRead installs a hook called after every register read, outside card locks.
func (c *Card) OnRead(hook func(addr uint32)) {
	c.mu.Lock()
	c.onRead = hook
	c.mu.Unlock()
}

// Accesses returns the number of accesses made to addr.
func (c *Card) Accesses(addr uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accesses[addr]
}

// IRQEnable returns the LSB and MSB interrupt enable registers.
func (c *Card) IRQEnable() (lsb, msb uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itEnLSB, c.itEnMSB
}

// IRQStatus returns the LSB and MSB interrupt status registers.
func (c *Card) IRQStatus() (lsb, msb uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itStatusLSB, c.itStatusMSB
}

// RdWatermark returns the read FIFO watermark programmed by the host.
func (c *Card) RdWatermark() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rdWatermark
}

// Pending returns the number of inbound PDUs not yet popped by the host.
func (c *Card) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rx)
}

// Enabled reports whether the host enabled the function.
func (c *Card) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// IRQClaimed reports whether an interrupt handler is installed.
func (c *Card) IRQClaimed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.irq != nil
}

// IOAbort returns the last value written to the CCCR I/O abort register.
func (c *Card) IOAbort() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ioAbort
}

func b2u8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
