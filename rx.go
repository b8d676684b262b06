package sqnsdio

import (
	"context"
	"log/slog"

	"github.com/soypat/sqnsdio/sqn"
)

// drain reads every PDU pending in the read FIFO and dispatches it. It keeps
// reading until the level register reads zero. A PDU whose payload could not
// be read is counted as lost and the drain moves on. Only level and size read
// failures fail the drain. drain returns nil without reading when the RX lock
// is held elsewhere.
func (d *Device) drain() error {
	if !d.rxDrain.TryLock() {
		return nil
	}
	defer d.rxDrain.Unlock()
	defer d.scheduleWakeRelease(wakeRx)
	for !d.removed.Load() {
		level, err := d.read16(regRdFIFOLevel)
		if err != nil {
			d.stats.rxErrors.Add(1)
			d.logerr("rx:read fifo level", slog.String("err", err.Error()))
			return err
		}
		if level == 0 {
			break
		}
		d.trace("rx:level", slog.Int("level", int(level)))
		for i := 0; i < int(level) && !d.removed.Load(); i++ {
			if err := d.rxPDU(); err != nil {
				return err
			}
		}
	}
	return nil
}

// rxPDU reads and dispatches the PDU at the head of the read FIFO. Reading
// the length register advances the FIFO whether or not the payload is read,
// so a failed payload read loses one PDU and is not an error. The returned
// error means the drain cannot continue.
func (d *Device) rxPDU() error {
	size16, err := d.read16(regRdLen)
	if err != nil {
		d.stats.rxErrors.Add(1)
		d.logerr("rx:read pdu size", slog.String("err", err.Error()))
		return err
	}
	size := int(size16)
	if !sqn.ValidSize(size) {
		d.stats.rxLengthErrors.Add(1)
		d.stats.rxErrors.Add(1)
		d.warn("rx:invalid pdu size", slog.Int("size", size))
		return nil
	}
	buf := make([]byte, sqn.MaxPDULen)
	err = d.readFIFO(regDataFIFO, buf[:size])
	if err != nil {
		d.stats.rxErrors.Add(1)
		d.stats.rxLost.Add(1)
		d.logerr("rx:pdu lost", slog.Int("size", size), slog.String("err", err.Error()))
		if IsTimeout(err) {
			d.recoverTimeout()
		}
		return nil
	}
	d.dispatch(buf[:size])
	return nil
}

// dispatch routes a received frame to the control handler or the network stack.
func (d *Device) dispatch(frame []byte) {
	d.dumpFrame("rx", frame)
	if d.cfg.Classifier.Classify(frame) == ClassControl {
		d.stats.rxControl.Add(1)
		if d.cfg.Control != nil {
			d.cfg.Control.HandleControl(frame)
		} else {
			d.stats.rxDropped.Add(1)
			d.debug("rx:no control handler, frame dropped", slog.Int("len", len(frame)))
		}
		return
	}
	if d.asleep.Swap(false) {
		d.debug("rx:data from sleeping card, marked awake")
	}
	if d.cfg.RxQueue {
		if !d.enqueueRx(frame) {
			d.stats.rxDropped.Add(1)
			return
		}
	} else if err := d.cfg.Netif.Deliver(frame); err != nil {
		d.stats.rxDropped.Add(1)
		d.debug("rx:deliver", slog.String("err", err.Error()))
		return
	}
	d.stats.rxPackets.Add(1)
	d.stats.rxBytes.Add(uint64(len(frame)))
	d.acquireWake(wakeRx)
}

// enqueueRx queues frame for the dispatch worker, waiting while the queue is
// above the high water mark. Returns false if the card went away meanwhile.
func (d *Device) enqueueRx(frame []byte) bool {
	d.rxLock.Lock()
	for d.rxq.len() >= d.cfg.RxHighWater && !d.removed.Load() {
		d.kickRxq()
		d.rxCond.Wait()
	}
	if d.removed.Load() {
		d.rxLock.Unlock()
		return false
	}
	d.rxq.pushBack(frame)
	d.rxLock.Unlock()
	d.kickRxq()
	return true
}

// RxQueueLen returns the number of received frames waiting for dispatch.
func (d *Device) RxQueueLen() int {
	d.rxLock.Lock()
	defer d.rxLock.Unlock()
	return d.rxq.len()
}

func (d *Device) kickRxq() {
	select {
	case d.rxqwake <- struct{}{}:
	default:
	}
}

func (d *Device) rxqLoop(ctx context.Context) {
	defer d.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.rxqwake:
			d.dispatchRx()
		}
	}
}

// dispatchRx delivers queued frames to the network stack and wakes a drain
// waiting for room once under the low water mark.
func (d *Device) dispatchRx() {
	if !d.rxDispatch.TryLock() {
		return
	}
	defer d.rxDispatch.Unlock()
	defer d.scheduleWakeRelease(wakeRx)
	for !d.removed.Load() {
		d.rxLock.Lock()
		frame, ok := d.rxq.popFront()
		if d.rxq.len() < d.cfg.RxLowWater {
			d.rxCond.Broadcast()
		}
		d.rxLock.Unlock()
		if !ok {
			return
		}
		if err := d.cfg.Netif.Deliver(frame); err != nil {
			d.stats.rxDropped.Add(1)
			d.debug("rx:deliver", slog.String("err", err.Error()))
		}
	}
}
