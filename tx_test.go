package sqnsdio

import (
	"bytes"
	"errors"
	"testing"

	"github.com/soypat/sqnsdio/sdiosim"
	"github.com/soypat/sqnsdio/sqn"
)

func TestSubmitBackpressure(t *testing.T) {
	d, card, nif := testDevice(t, Config{TxHighWater: 2, TxLowWater: 1})
	frames := [][]byte{dataFrame(100, 1), dataFrame(200, 2), dataFrame(4000, 3)}
	for i, f := range frames {
		if err := d.Submit(f, false); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if stops, _ := nif.queueCalls(); stops != 1 {
		t.Fatalf("want queue stopped once after exceeding high water, got %d", stops)
	}
	err := d.Submit(dataFrame(64, 4), false)
	if !errors.Is(err, ErrBackpressure) {
		t.Fatalf("want backpressure, got %v", err)
	}
	prio := dataFrame(60, 5)
	if err = d.Submit(prio, true); err != nil {
		t.Fatal("priority frame rejected:", err)
	}
	if stops, _ := nif.queueCalls(); stops != 1 {
		t.Fatalf("queue stopped again: %d", stops)
	}

	d.pump()
	sent := card.Sent()
	want := append([][]byte{prio}, frames...)
	if len(sent) != len(want) {
		t.Fatalf("want %d PDUs, got %d", len(want), len(sent))
	}
	for i := range want {
		if !bytes.Equal(sent[i], want[i]) {
			t.Errorf("pdu %d: payload mismatch (len %d, want %d)", i, len(sent[i]), len(want[i]))
		}
	}
	if _, wakes := nif.queueCalls(); wakes != 1 {
		t.Fatalf("want queue woken once, got %d", wakes)
	}
	for i, pdu := range card.SentPDUs() {
		if len(pdu)%sqn.BlockSize != 0 || len(pdu) > sqn.MaxPDULen {
			t.Errorf("pdu %d: bad on-wire length %d", i, len(pdu))
		}
	}
	st := d.Stats()
	if st.TxPackets != 4 || st.TxBytes != 100+200+4000+60 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSubmitRejects(t *testing.T) {
	filtered := dataFrame(80, 9)
	d, card, _ := testDevice(t, Config{
		TxFilter: func(frame []byte) bool { return bytes.Equal(frame, filtered) },
	})
	if err := d.Submit(make([]byte, sqn.MaxFrameLen+1), false); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversized frame: got %v", err)
	}
	if err := d.Submit(nil, false); !errors.Is(err, sqn.ErrEmptyFrame) {
		t.Errorf("empty frame: got %v", err)
	}
	if err := d.Submit(filtered, false); err != nil {
		t.Errorf("filtered frame: got %v", err)
	}
	if d.TxQueueLen() != 0 {
		t.Fatal("rejected frames queued")
	}
	if got := d.Stats().TxDropped; got != 3 {
		t.Errorf("want 3 dropped, got %d", got)
	}

	d.NotifyLinkDown()
	if err := d.Submit(dataFrame(64, 0), false); !errors.Is(err, ErrLinkDown) {
		t.Errorf("link down: got %v", err)
	}
	d.NotifyLinkReady()
	if err := d.Submit(dataFrame(sqn.MaxFrameLen, 0), false); err != nil {
		t.Errorf("max size frame: got %v", err)
	}
	d.pump()
	if len(card.Sent()) != 1 {
		t.Fatal("max size frame not sent")
	}
	d.Close()
	if err := d.Submit(dataFrame(64, 0), false); !errors.Is(err, ErrRemoved) {
		t.Errorf("removed: got %v", err)
	}
}

func TestPumpWriteLevel(t *testing.T) {
	d, card, _ := testDevice(t, Config{})
	// Two zero readings mean not ready. Three slots then, and the cache
	// is refreshed once exhausted.
	card.SetWrLevels(0, 0, 3, 2)
	for i := 0; i < 5; i++ {
		d.Submit(dataFrame(64, byte(i)), false)
	}
	d.pump()
	if got := len(card.Sent()); got != 5 {
		t.Fatalf("want 5 PDUs sent, got %d", got)
	}
	if got := card.Accesses(sqn.SQN_SDIO_WR_FIFO_LEVEL); got != 4 {
		t.Errorf("want 4 level reads, got %d", got)
	}
	if d.txFailures != 0 {
		t.Errorf("successful pass counted as failure")
	}
}

func TestPumpWriteFIFONeverReady(t *testing.T) {
	d, card, _ := testDevice(t, Config{})
	card.SetWrLevels(0)
	d.Submit(dataFrame(64, 0), false)
	d.Submit(dataFrame(64, 1), false)
	d.pump()
	if len(card.Sent()) != 0 {
		t.Fatal("sent to a FIFO without room")
	}
	if got := card.Accesses(sqn.SQN_SDIO_WR_FIFO_LEVEL); got != fifoPollTries {
		t.Errorf("want %d level polls, got %d", fifoPollTries, got)
	}
	if d.txFailures != 1 {
		t.Errorf("want 1 failure, got %d", d.txFailures)
	}
	if d.TxQueueLen() != 1 || d.Stats().TxDropped != 1 {
		t.Errorf("want the current frame dropped and one left, queue=%d stats=%+v", d.TxQueueLen(), d.Stats())
	}
}

func TestPumpFirmwareNotStarted(t *testing.T) {
	d, card, _ := testDevice(t, Config{})
	card.SetFirmwareReady(false)
	d.Submit(dataFrame(64, 0), false)
	d.Submit(dataFrame(64, 1), false)
	d.pump()
	if d.TxQueueLen() != 1 {
		t.Fatalf("want one frame dropped, queue has %d", d.TxQueueLen())
	}
	if st := d.Stats(); st.TxErrors != 1 || st.TxDropped != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	card.SetFirmwareReady(true)
	d.pump()
	if len(card.Sent()) != 1 || d.txFailures != 0 {
		t.Fatalf("want recovery once firmware runs, sent=%d failures=%d", len(card.Sent()), d.txFailures)
	}
}

func TestPumpWriteTimeout(t *testing.T) {
	d, card, _ := testDevice(t, Config{AbortOnTimeout: true})
	card.InjectFault(regDataFIFO, ErrBusTimeout)
	d.Submit(dataFrame(64, 0), false)
	d.Submit(dataFrame(64, 1), false)
	d.pump()
	if card.IOAbort() != card.Num() {
		t.Errorf("want CMD53 abort of function %d, got %d", card.Num(), card.IOAbort())
	}
	if d.txFailures != 1 || d.TxQueueLen() != 1 {
		t.Errorf("want failed pass with one frame left, failures=%d queue=%d", d.txFailures, d.TxQueueLen())
	}
	d.pump()
	if len(card.Sent()) != 1 {
		t.Fatal("remaining frame not sent")
	}
}

func TestPumpSleepingCard(t *testing.T) {
	sl := &sleeperRec{}
	d, card, _ := testDevice(t, Config{Sleeper: sl})
	d.SetAsleep(true)
	d.Submit(dataFrame(64, 0), false)
	d.pump()
	if sl.wakeups != 1 || len(card.Sent()) != 1 {
		t.Fatalf("want card woken before transfer, wakeups=%d sent=%d", sl.wakeups, len(card.Sent()))
	}
}

func TestResetPolicy(t *testing.T) {
	plat := &sdiosim.Platform{}
	d, _, _ := testDevice(t, Config{Platform: plat})
	d.ForceTxFailures(txResetThreshold)
	for i := 0; i < txResetThreshold; i++ {
		d.pump()
	}
	if plat.Count("power off") != 0 {
		t.Fatal("reset before exceeding threshold")
	}
	// A good pass clears the count.
	d.pump()
	d.ForceTxFailures(txResetThreshold + 1)
	for i := 0; i < txResetThreshold; i++ {
		d.pump()
	}
	if plat.Count("power off") != 0 || d.Removed() {
		t.Fatal("failure count not reset by successful pass")
	}
	d.pump()
	want := []string{"power off", "power on", "rescan"}
	got := plat.Events()
	if len(got) != len(want) {
		t.Fatalf("want events %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want events %q, got %q", want, got)
		}
	}
	if !d.Removed() || d.Stats().Resets != 1 || d.txFailures != 0 {
		t.Errorf("reset not recorded: removed=%v stats=%+v failures=%d", d.Removed(), d.Stats(), d.txFailures)
	}
}

func TestResetNotifier(t *testing.T) {
	plat := &sdiosim.Platform{}
	rn := &notifierRec{}
	d, _, _ := testDevice(t, Config{Platform: plat, DisableHardwareReset: true, ResetNotifier: rn})
	d.ForceTxFailures(txResetThreshold + 1)
	for i := 0; i < txResetThreshold; i++ {
		d.pump()
	}
	if len(rn.reasons) != 0 {
		t.Fatalf("reset requested on each failed pass: %d", len(rn.reasons))
	}
	d.pump()
	if len(rn.reasons) != 1 {
		t.Fatalf("want one reset request, got %d", len(rn.reasons))
	}
	if len(plat.Events()) != 0 || d.Removed() {
		t.Errorf("hardware touched with reset disabled: %q", plat.Events())
	}
}
