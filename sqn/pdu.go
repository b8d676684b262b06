package sqn

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"golang.org/x/exp/constraints"
)

const (
	// BlockSize is the SDIO block size PDUs are padded to.
	BlockSize = 512
	// MaxPDULen is the largest PDU, padding included, the card FIFOs accept.
	MaxPDULen = 4096

	PDU_HEADER_LEN  = 2
	PDU_TRAILER_LEN = 4

	// MaxFrameLen is the largest network frame that fits in a PDU.
	MaxFrameLen = MaxPDULen - PDU_HEADER_LEN - PDU_TRAILER_LEN
)

var (
	ErrFrameTooLarge  = errors.New("sqn: frame exceeds max pdu length")
	ErrEmptyFrame     = errors.New("sqn: empty frame")
	ErrInvalidPDUSize = errors.New("sqn: invalid pdu size")
	ErrBadPDULength   = errors.New("sqn: pdu length field mismatch")
)

// PDUHeader precedes every outbound PDU.
//
//	| Length (LE) | Payload | Trailer | Padding            |
//	|     2B      |   nB    |   4B    | to BlockSize       |
//
// Length counts the payload and the trailer. The trailer is reserved for a
// checksum and is always zero.
type PDUHeader struct {
	Length uint16
}

func DecodePDUHeader(b []byte) (hdr PDUHeader) {
	_ = b[PDU_HEADER_LEN-1]
	hdr.Length = binary.LittleEndian.Uint16(b)
	return hdr
}

// Put puts the 2 header bytes in dst. Panics if dst is shorter than 2 bytes.
func (h PDUHeader) Put(dst []byte) {
	binary.LittleEndian.PutUint16(dst, h.Length)
}

// PayloadLen is the length of the payload described by the header.
func (h PDUHeader) PayloadLen() int { return int(h.Length) - PDU_TRAILER_LEN }

// PaddedLen returns the on-wire size of a PDU carrying a frameLen byte frame.
// Negative sizes and sizes that do not fit an int saturate to math.MaxInt.
func PaddedLen(frameLen int) int {
	if frameLen < 0 {
		return math.MaxInt
	}
	n := alignup(uint64(frameLen)+PDU_HEADER_LEN+PDU_TRAILER_LEN, BlockSize)
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// Encode writes frame as a PDU to dst and returns the number of bytes written,
// always a multiple of BlockSize. dst is left untouched on error.
func Encode(dst, frame []byte) (int, error) {
	if len(frame) == 0 {
		return 0, ErrEmptyFrame
	} else if len(frame) > MaxFrameLen {
		return 0, ErrFrameTooLarge
	}
	n := PaddedLen(len(frame))
	if len(dst) < n {
		return 0, io.ErrShortBuffer
	}
	PDUHeader{Length: uint16(len(frame) + PDU_TRAILER_LEN)}.Put(dst)
	copied := copy(dst[PDU_HEADER_LEN:], frame)
	clear(dst[PDU_HEADER_LEN+copied : n]) // Trailer and padding.
	return n, nil
}

// Decode validates an outbound format PDU and returns its payload, which
// aliases pdu. The trailer is not checked.
func Decode(pdu []byte) ([]byte, error) {
	if !ValidSize(len(pdu)) {
		return nil, ErrInvalidPDUSize
	}
	if len(pdu) < PDU_HEADER_LEN+PDU_TRAILER_LEN {
		return nil, ErrBadPDULength
	}
	hdr := DecodePDUHeader(pdu)
	plen := hdr.PayloadLen()
	if plen <= 0 || PDU_HEADER_LEN+int(hdr.Length) > len(pdu) {
		return nil, ErrBadPDULength
	}
	return pdu[PDU_HEADER_LEN : PDU_HEADER_LEN+plen], nil
}

// ValidSize reports whether size is an acceptable inbound PDU size as read
// from the SQN_SDIO_RDLEN_FIFO register.
func ValidSize(size int) bool {
	return size >= 1 && size <= MaxPDULen
}

// alignup rounds `val` up to nearest multiple of `align`. `align` must be a power of 2.
func alignup[T constraints.Unsigned](val, align T) T {
	return (val + align - 1) &^ (align - 1)
}
