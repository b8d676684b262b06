// package sqn implements the wire-level definitions of the Sequans SQN1130 and
// SQN1210/SQN1220 SDIO WiMAX cards: register map, interrupt bits, card
// identification and the PDU framing used on the data FIFO.
package sqn

import "errors"

// SDIO identification of supported cards.
const (
	SDIO_VENDOR_ID_SEQUANS = 0x039d

	SDIO_DEVICE_ID_SQN1130 = 0x1130
	SDIO_DEVICE_ID_SQN1210 = 0x1210
	SDIO_DEVICE_ID_SQN1220 = 0x1220
)

// Function 1 register map. Byte registers are accessed with CMD52, word and
// long registers with byte-mode CMD53.
const (
	SQN_SDIO_IT_EN_LSBS     = 0x2010
	SQN_SDIO_IT_EN_MSBS     = 0x2011
	SQN_SDIO_IT_STATUS_LSBS = 0x2012
	SQN_SDIO_IT_STATUS_MSBS = 0x2013

	// Long register. Free PDU slots of the write FIFO, see WrFIFOLevel.
	SQN_SDIO_WR_FIFO_LEVEL       = 0x2050
	SQN_SDIO_WR_FIFO_LEVEL_SHIFT = 2

	SQN_SDIO_RD_FIFO_LEVEL_BASE = 0x2060 // word, one per FIFO
	SQN_SDIO_RDLEN_FIFO_BASE    = 0x2070 // word, one per FIFO
	SQN_SDIO_WM_RD_FIFO_BASE    = 0x2080 // word, one per FIFO
	SQN_SDIO_RSTN_WR_FIFO_BASE  = 0x2090 // byte, one per FIFO

	// Nonzero when the card boots from its own SPI flash.
	SQN_H_BOOT_FROM_SPI = 0x20a0

	SQN_H_CISTPLMID_MANF = 0x20b0 // word
	SQN_H_CISTPLMID_CARD = 0x20b2 // word

	// Data window for block transfers, one per FIFO.
	SQN_SDIO_RDWR_FIFO_BASE = 0x4000
	SQN_SDIO_RDWR_FIFO_SPAN = 0x1000
)

// DataFIFO is the FIFO index carrying network PDUs in both directions.
const DataFIFO = 2

// CCCR registers of function 0 used by the driver.
const (
	SDIO_CCCR_IO_ABORT = 0x06
)

func SQN_SDIO_RD_FIFO_LEVEL(fifo uint32) uint32 { return SQN_SDIO_RD_FIFO_LEVEL_BASE + 2*fifo }
func SQN_SDIO_RDLEN_FIFO(fifo uint32) uint32    { return SQN_SDIO_RDLEN_FIFO_BASE + 2*fifo }
func SQN_SDIO_WM_RD_FIFO(fifo uint32) uint32    { return SQN_SDIO_WM_RD_FIFO_BASE + 2*fifo }
func SQN_SDIO_RSTN_WR_FIFO(fifo uint32) uint32  { return SQN_SDIO_RSTN_WR_FIFO_BASE + fifo }
func SQN_SDIO_RDWR_FIFO(fifo uint32) uint32 {
	return SQN_SDIO_RDWR_FIFO_BASE + SQN_SDIO_RDWR_FIFO_SPAN*fifo
}

// WrFIFOLevel extracts the free slot count from a SQN_SDIO_WR_FIFO_LEVEL read.
// The card firmware reports the count shifted left by two bits.
func WrFIFOLevel(reg uint32) uint32 { return reg >> SQN_SDIO_WR_FIFO_LEVEL_SHIFT }

// PutWrFIFOLevel is the SQN_SDIO_WR_FIFO_LEVEL value reporting level free slots.
func PutWrFIFOLevel(level uint32) uint32 { return level << SQN_SDIO_WR_FIFO_LEVEL_SHIFT }

// ErrUnsupportedCard is returned by VariantOf for unknown SDIO device IDs.
var ErrUnsupportedCard = errors.New("sqn: unsupported card")

// Variant is the hardware generation of an attached card. It selects the
// firmware image.
type Variant uint8

const (
	VariantUnknown Variant = iota
	Variant1130
	Variant12x0
)

// VariantOf identifies the card from its SDIO device ID.
func VariantOf(device uint16) (Variant, error) {
	switch device {
	case SDIO_DEVICE_ID_SQN1130:
		return Variant1130, nil
	case SDIO_DEVICE_ID_SQN1210, SDIO_DEVICE_ID_SQN1220:
		return Variant12x0, nil
	}
	return VariantUnknown, ErrUnsupportedCard
}

// Firmware returns the default firmware image name for the variant.
func (v Variant) Firmware() string {
	switch v {
	case Variant1130:
		return "sqn1130.bin"
	case Variant12x0:
		return "sqn1210.bin"
	}
	return ""
}

func (v Variant) String() string {
	switch v {
	case Variant1130:
		return "SQN1130"
	case Variant12x0:
		return "SQN1210"
	}
	return "unknown"
}
