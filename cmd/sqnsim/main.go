package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/soypat/sqnsdio"
	"github.com/soypat/sqnsdio/internal/eth"
	"github.com/soypat/sqnsdio/sdiosim"
	"github.com/soypat/sqnsdio/sqn"
	"github.com/soypat/sqnsdio/tracker"
)

var (
	hostMAC = [6]byte{0x02, 0x00, 0x5e, 0x00, 0x00, 0x01}
	bsMAC   = [6]byte{0x02, 0x00, 0x5e, 0x00, 0x00, 0xfe}
	hostIP  = [4]byte{10, 0, 0, 2}
	bsIP    = [4]byte{10, 0, 0, 1}
)

type flags struct {
	config   string
	logfile  string
	device   string
	frames   int
	size     int
	rxRate   time.Duration
	duration time.Duration
	fail     int
	suspend  bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "YAML parameter file. SQN_* environment variables override it.")
	flag.StringVar(&f.logfile, "log", "", "Log to this file with rotation instead of stderr.")
	flag.StringVar(&f.device, "device", "0x1210", "SDIO device ID of the simulated card.")
	flag.IntVar(&f.frames, "frames", 200, "Number of frames to transmit.")
	flag.IntVar(&f.size, "size", 1400, "Maximum UDP payload size of generated frames.")
	flag.DurationVar(&f.rxRate, "rx", 5*time.Millisecond, "Interval between frames received from the card. Zero disables RX.")
	flag.DurationVar(&f.duration, "t", 2*time.Second, "Run time.")
	flag.IntVar(&f.fail, "fail", 0, "Force this many failed TX passes to exercise the reset policy.")
	flag.BoolVar(&f.suspend, "suspend", false, "Run a suspend/resume cycle halfway through.")
	flag.Parse()
	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "sqnsim:", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	params, err := sqnsdio.LoadParams(f.config)
	if err != nil {
		return err
	}
	level, _ := params.LogLevel()
	var w io.Writer = os.Stderr
	if f.logfile != "" {
		lj := &lumberjack.Logger{
			Filename:   f.logfile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			Compress:   true,
		}
		defer lj.Close()
		w = lj
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))

	devID, err := strconv.ParseUint(f.device, 0, 16)
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	card := sdiosim.NewCard(uint16(devID))
	plat := &sdiosim.Platform{
		OnRescan: func(time.Duration) { logger.Warn("sim:card reset, slot rescan requested") },
	}
	nif := &countingNetif{woken: make(chan struct{}, 1)}

	var cfg sqnsdio.Config
	params.Apply(&cfg)
	cfg.Logger = logger
	cfg.Netif = nif
	cfg.Platform = plat
	cfg.Control = controlLogger{logger: logger}
	if params.Tracker.Broker != "" && !params.Power.HardwareReset {
		n, err := tracker.New(tracker.Config{
			Broker:   params.Tracker.Broker,
			Topic:    params.Tracker.Topic,
			ClientID: params.Tracker.ClientID,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer n.Close()
		cfg.ResetNotifier = n
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, f.duration)
	defer cancel()

	dev, err := sqnsdio.Attach(ctx, card, cfg)
	if err != nil {
		return err
	}
	defer dev.Close()
	if f.fail > 0 {
		dev.ForceTxFailures(f.fail)
	}
	if f.rxRate > 0 {
		go receiveLoop(ctx, card, f.rxRate, f.size)
	}

	rng := rand.New(rand.NewSource(1))
	start := time.Now()
	sent := 0
	for sent < f.frames && ctx.Err() == nil && !dev.Removed() {
		if f.suspend && sent == f.frames/2 {
			suspendCycle(dev, logger)
		}
		payload := make([]byte, 1+rng.Intn(max(1, f.size)))
		rng.Read(payload)
		frame := eth.UDPv4Frame(bsMAC, hostMAC, hostIP, bsIP, 5000, 5001, payload)
		err = dev.Submit(frame, false)
		switch {
		case errors.Is(err, sqnsdio.ErrBackpressure):
			nif.waitWake(ctx)
			continue
		case err != nil:
			logger.Error("sim:submit", slog.String("err", err.Error()))
		}
		sent++
	}
	for dev.TxQueueLen() > 0 && ctx.Err() == nil && !dev.Removed() {
		time.Sleep(time.Millisecond)
	}
	elapsed := time.Since(start)
	st := dev.Stats()
	fmt.Printf("card %s firmware %s state %s in %s\n", dev.Variant(), dev.Firmware(), dev.State(), elapsed.Round(time.Millisecond))
	fmt.Printf("tx: packets=%d bytes=%d dropped=%d errors=%d pdus=%d\n", st.TxPackets, st.TxBytes, st.TxDropped, st.TxErrors, len(card.SentPDUs()))
	fmt.Printf("rx: packets=%d bytes=%d dropped=%d errors=%d length_errors=%d control=%d delivered=%d\n",
		st.RxPackets, st.RxBytes, st.RxDropped, st.RxErrors, st.RxLengthErrors, st.RxControl, nif.delivered.Load())
	fmt.Printf("resets=%d platform=%q\n", st.Resets, plat.Events())
	return nil
}

// receiveLoop injects inbound traffic: UDP frames, a control frame every 16
// frames and an occasional PDU with a corrupt length.
func receiveLoop(ctx context.Context, card *sdiosim.Card, every time.Duration, size int) {
	rng := rand.New(rand.NewSource(2))
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		switch {
		case i%64 == 63:
			card.ReceiveRaw(sqn.MaxPDULen+1, nil)
		case i%16 == 15:
			ctl := make([]byte, 64)
			copy(ctl, hostMAC[:])
			copy(ctl[6:], bsMAC[:])
			ctl[12], ctl[13] = byte(sqnsdio.DefaultControlEtherType>>8), byte(sqnsdio.DefaultControlEtherType)
			card.Receive(ctl)
		default:
			payload := make([]byte, 1+rng.Intn(max(1, size)))
			rng.Read(payload)
			card.Receive(eth.UDPv4Frame(hostMAC, bsMAC, bsIP, hostIP, 5001, 5000, payload))
		}
	}
}

func suspendCycle(dev *sqnsdio.Device, logger *slog.Logger) {
	if err := dev.Suspend(sqnsdio.PMSuspend); err != nil {
		logger.Error("sim:suspend", slog.String("err", err.Error()))
		return
	}
	time.Sleep(10 * time.Millisecond)
	dev.HostWakeup()
	if err := dev.Resume(); err != nil {
		logger.Error("sim:resume", slog.String("err", err.Error()))
	}
}

type countingNetif struct {
	delivered atomic.Uint64
	woken     chan struct{}
}

func (n *countingNetif) Deliver(frame []byte) error {
	n.delivered.Add(1)
	return nil
}

func (n *countingNetif) StopQueue() {}

func (n *countingNetif) WakeQueue() {
	select {
	case n.woken <- struct{}{}:
	default:
	}
}

func (n *countingNetif) waitWake(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-n.woken:
	case <-time.After(100 * time.Millisecond):
	}
}

type controlLogger struct {
	logger *slog.Logger
}

func (c controlLogger) HandleControl(frame []byte) {
	c.logger.Debug("sim:control frame", slog.Int("len", len(frame)))
}
