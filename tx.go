package sqnsdio

import (
	"context"
	"log/slog"
	"time"

	"github.com/soypat/sqnsdio/sqn"
)

// Submit queues frame for transmission and takes ownership of it. Priority
// frames go ahead of every queued frame. Frames that cannot be encoded are
// dropped with ErrFrameTooLarge. While the queue is stopped by backpressure
// only priority frames are accepted, others get ErrBackpressure.
//
// Netif.StopQueue and Netif.WakeQueue are called with the TX queue locked and
// must not call back into the Device.
func (d *Device) Submit(frame []byte, priority bool) error {
	switch {
	case d.removed.Load():
		return ErrRemoved
	case d.linkDown.Load():
		return ErrLinkDown
	case len(frame) == 0:
		d.stats.txDropped.Add(1)
		return sqn.ErrEmptyFrame
	case len(frame) > sqn.MaxFrameLen:
		d.stats.txDropped.Add(1)
		d.debug("tx:frame too large", slog.Int("len", len(frame)))
		return ErrFrameTooLarge
	case d.cfg.TxFilter != nil && d.cfg.TxFilter(frame):
		d.stats.txDropped.Add(1)
		d.trace("tx:frame filtered", slog.Int("len", len(frame)))
		return nil
	}
	d.txLock.Lock()
	if d.txStopped && !priority {
		d.txLock.Unlock()
		return ErrBackpressure
	}
	if priority {
		d.txq.pushFront(frame)
	} else {
		d.txq.pushBack(frame)
	}
	qlen := d.txq.len()
	if !d.txStopped && qlen > d.cfg.TxHighWater {
		d.txStopped = true
		d.cfg.Netif.StopQueue()
		d.debug("tx:queue stopped", slog.Int("qlen", qlen))
	}
	d.txLock.Unlock()
	d.acquireWake(wakeTx)
	d.kickTx()
	return nil
}

// TxQueueLen returns the number of frames waiting for transmission.
func (d *Device) TxQueueLen() int {
	d.txLock.Lock()
	defer d.txLock.Unlock()
	return d.txq.len()
}

func (d *Device) kickTx() {
	select {
	case d.txwake <- struct{}{}:
	default:
	}
}

// txLoop runs pump passes on demand. A pass that leaves frames behind is
// retried after txRetryDelay.
func (d *Device) txLoop(ctx context.Context) {
	defer d.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.txwake:
		}
		for {
			d.pump()
			if d.removed.Load() || d.linkDown.Load() || d.TxQueueLen() == 0 {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(txRetryDelay):
			}
		}
	}
}

// pump drains the TX queue into the card write FIFO. Returns at once when
// another pass holds the pump, which only happens during suspend and teardown.
func (d *Device) pump() {
	if !d.txPump.TryLock() {
		return
	}
	defer d.txPump.Unlock()
	err := d.pumpPass()
	d.scheduleWakeRelease(wakeTx)
	d.passDone(err)
}

func (d *Device) pumpPass() error {
	if d.asleep.Load() && d.cfg.Sleeper != nil {
		if err := d.cfg.Sleeper.Wakeup(d.fn); err != nil {
			d.warn("tx:wakeup card", slog.String("err", err.Error()))
		}
	}
	if !d.firmwareReady() {
		if _, ok := d.dequeueTx(); ok {
			d.stats.txDropped.Add(1)
			d.stats.txErrors.Add(1)
		}
		d.warn("tx:firmware not started, frame dropped")
		return errFirmwareNotStarted
	}
	d.txLevel = 0
	for !d.removed.Load() {
		frame, ok := d.dequeueTx()
		if !ok {
			return nil
		}
		n, err := sqn.Encode(d.txbuf[:], frame)
		if err != nil {
			d.stats.txDropped.Add(1)
			d.debug("tx:encode", slog.Int("len", len(frame)), slog.String("err", err.Error()))
			continue
		}
		if d.txLevel == 0 {
			d.txLevel, err = d.pollWrLevel()
			if err != nil {
				d.stats.txDropped.Add(1)
				d.stats.txErrors.Add(1)
				return err
			}
		}
		d.dumpFrame("tx", frame)
		err = d.writeFIFO(regDataFIFO, d.txbuf[:n])
		if err != nil {
			d.stats.txErrors.Add(1)
			d.logerr("tx:write pdu", slog.Int("len", n), slog.String("err", err.Error()))
			if IsTimeout(err) {
				d.recoverTimeout()
				return err
			}
			continue
		}
		d.txLevel--
		d.stats.txPackets.Add(1)
		d.stats.txBytes.Add(uint64(len(frame)))
	}
	return nil
}

// dequeueTx pops the next frame and releases backpressure once the queue
// falls under the low water mark.
func (d *Device) dequeueTx() ([]byte, bool) {
	d.txLock.Lock()
	defer d.txLock.Unlock()
	frame, ok := d.txq.popFront()
	if ok && d.txStopped && d.txq.len() < d.cfg.TxLowWater && !d.pmPending.Load() {
		d.txStopped = false
		d.cfg.Netif.WakeQueue()
		d.debug("tx:queue woken", slog.Int("qlen", d.txq.len()))
	}
	return frame, ok
}

// pollWrLevel reads the free slot count of the write FIFO. A zero reading
// means the card is not ready and is retried.
func (d *Device) pollWrLevel() (int, error) {
	for i := 0; i < fifoPollTries; i++ {
		if d.removed.Load() {
			return 0, ErrRemoved
		}
		v, err := d.read32(sqn.SQN_SDIO_WR_FIFO_LEVEL)
		if err != nil {
			msg := "tx:read write fifo level"
			if IsTimeout(err) {
				msg = "tx:CMD53 timeout reading write fifo level"
			}
			d.logerr(msg, slog.String("err", err.Error()))
			return 0, err
		}
		if level := sqn.WrFIFOLevel(v); level > 0 {
			return int(level), nil
		}
		time.Sleep(d.cfg.FIFOPoll)
	}
	d.warn("tx:write fifo not ready", slog.Int("tries", fifoPollTries))
	return 0, errFIFONotReady
}

// recoverTimeout aborts a CMD53 left hanging by a bus timeout.
func (d *Device) recoverTimeout() {
	if !d.cfg.AbortOnTimeout {
		return
	}
	if err := d.abort(); err != nil {
		d.logerr("abort cmd53", slog.String("err", err.Error()))
	}
}
