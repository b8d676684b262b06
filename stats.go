package sqnsdio

import "sync/atomic"

// Stats are the transport counters of a Device.
type Stats struct {
	TxPackets uint64
	TxBytes   uint64
	TxDropped uint64
	TxErrors  uint64

	RxPackets      uint64
	RxBytes        uint64
	RxDropped      uint64
	RxErrors       uint64
	RxLengthErrors uint64
	// RxLost counts PDUs popped from the read FIFO whose payload read failed.
	RxLost    uint64
	RxControl uint64

	// Resets counts hardware resets and reset requests.
	Resets uint64
}

type stats struct {
	txPackets, txBytes, txDropped, txErrors   atomic.Uint64
	rxPackets, rxBytes, rxDropped, rxErrors   atomic.Uint64
	rxLengthErrors, rxLost, rxControl, resets atomic.Uint64
}

// Stats returns a snapshot of the transport counters.
func (d *Device) Stats() Stats {
	s := &d.stats
	return Stats{
		TxPackets:      s.txPackets.Load(),
		TxBytes:        s.txBytes.Load(),
		TxDropped:      s.txDropped.Load(),
		TxErrors:       s.txErrors.Load(),
		RxPackets:      s.rxPackets.Load(),
		RxBytes:        s.rxBytes.Load(),
		RxDropped:      s.rxDropped.Load(),
		RxErrors:       s.rxErrors.Load(),
		RxLengthErrors: s.rxLengthErrors.Load(),
		RxLost:         s.rxLost.Load(),
		RxControl:      s.rxControl.Load(),
		Resets:         s.resets.Load(),
	}
}
