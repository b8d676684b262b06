package sqn

// IRQ is a bit of the SQN_SDIO_IT_STATUS_LSBS and SQN_SDIO_IT_EN_LSBS registers.
// Bits are cleared by writing a "1".
//
//go:generate stringer -type=IRQ -output=irq_string.go -trimprefix=IRQ
type IRQ uint8

const (
	IRQWrFIFO0WM IRQ = 1 << iota // Write FIFO 0 below watermark.
	IRQWrFIFO1WM
	IRQWrFIFO2WM
	IRQRdFIFO0WM // Read FIFO 0 above watermark.
	IRQRdFIFO1WM
	IRQRdFIFO2WM
	IRQSwSign // Firmware software signal.
)

// Bits enabled by the driver.
const IRQEnableDefault = IRQWrFIFO2WM | IRQRdFIFO2WM | IRQSwSign

// IRQMSBAll acknowledges every bit of SQN_SDIO_IT_STATUS_MSBS.
const IRQMSBAll = 0xff
