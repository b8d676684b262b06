package sqnsdio

import (
	"errors"
	"strconv"

	"github.com/soypat/sqnsdio/sqn"
)

var (
	// ErrBusTimeout is the error class of a register access or block transfer
	// that did not complete. Func implementations return or wrap it.
	ErrBusTimeout = errors.New("sdio: bus timeout")
	// ErrBackpressure is returned by Submit while the TX queue is stopped.
	ErrBackpressure = errors.New("tx queue stopped")
	ErrLinkDown     = errors.New("link down")
	ErrRemoved      = errors.New("card removed")
	// ErrFrameTooLarge is returned by Submit for frames that do not fit in a PDU.
	ErrFrameTooLarge   = sqn.ErrFrameTooLarge
	ErrUnsupportedCard = sqn.ErrUnsupportedCard

	errFirmwareNotStarted = errors.New("firmware not started")
	errFIFONotReady       = errors.New("write fifo not ready")
)

// BusError is a failed register access or FIFO transfer.
type BusError struct {
	Op   string // "read8", "write16", "readfifo", ...
	Reg  string // Register name, if known.
	Addr uint32
	Err  error
}

func (e *BusError) Error() string {
	reg := e.Reg
	if reg == "" {
		reg = "0x" + strconv.FormatUint(uint64(e.Addr), 16)
	}
	return "sdio " + e.Op + " " + reg + ": " + e.Err.Error()
}

func (e *BusError) Unwrap() error { return e.Err }

// Timeout reports whether the access failed with a bus timeout.
func (e *BusError) Timeout() bool { return isTimeoutErrno(e.Err) || errors.Is(e.Err, ErrBusTimeout) }

// IsTimeout reports whether err is a bus timeout.
func IsTimeout(err error) bool {
	var be *BusError
	if errors.As(err, &be) {
		return be.Timeout()
	}
	return errors.Is(err, ErrBusTimeout) || isTimeoutErrno(err)
}
