package sqnsdio

import (
	"log/slog"

	"github.com/soypat/sqnsdio/internal/eth"
)

// dumpFrame logs a one line summary of frame when packet dumps are enabled at
// trace level. The first frame received after a host wakeup is always logged.
func (d *Device) dumpFrame(dir string, frame []byte) {
	wakeup := dir == "rx" && d.hostWakeEvent.Swap(false)
	switch {
	case wakeup:
		d.info("rx:first frame after host wakeup", slog.Int("len", len(frame)), slog.String("frame", eth.Summary(frame)))
	case d.cfg.DumpPackets && d._traceenabled:
		d.trace(dir, slog.Int("len", len(frame)), slog.String("frame", eth.Summary(frame)))
	}
}
