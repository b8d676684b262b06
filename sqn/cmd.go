package sqn

import (
	"encoding/binary"
	"errors"
	"strconv"
)

// SDIO I/O command indices and the SPI mode command token.
const (
	SD_IO_RW_DIRECT   = 52
	SD_IO_RW_EXTENDED = 53

	SD_CMD_TOKEN_LEN = 6

	// Data start tokens of SPI mode block transfers.
	SD_TOKEN_START_BLOCK       = 0xfe
	SD_TOKEN_START_MULTI_WRITE = 0xfc
)

var (
	ErrBadToken = errors.New("sqn: not an sdio i/o command token")
	ErrBadCRC   = errors.New("sqn: command token crc7 mismatch")
)

// IOCommand is a decoded CMD52 (IO_RW_DIRECT) or CMD53 (IO_RW_EXTENDED).
type IOCommand struct {
	Index uint8
	Write bool
	Fn    uint8
	Addr  uint32
	// CMD52 only.
	RAW  bool
	Data uint8
	// CMD53 only. Count is in bytes, or blocks in block mode.
	Block   bool
	IncAddr bool
	Count   uint16
}

// ParseIOArg decodes the argument of command index 52 or 53.
func ParseIOArg(index uint8, arg uint32) (cmd IOCommand, err error) {
	cmd = IOCommand{
		Index: index,
		Write: arg&(1<<31) != 0,
		Fn:    uint8(arg>>28) & 0b111,
		Addr:  (arg >> 9) & 0x1ffff,
	}
	switch index {
	case SD_IO_RW_DIRECT:
		cmd.RAW = arg&(1<<27) != 0
		cmd.Data = uint8(arg)
	case SD_IO_RW_EXTENDED:
		cmd.Block = arg&(1<<27) != 0
		cmd.IncAddr = arg&(1<<26) != 0
		cmd.Count = uint16(arg & 0x1ff)
	default:
		return cmd, ErrBadToken
	}
	return cmd, nil
}

// Arg encodes the command argument.
func (cmd IOCommand) Arg() (arg uint32) {
	if cmd.Write {
		arg |= 1 << 31
	}
	arg |= uint32(cmd.Fn&0b111) << 28
	arg |= (cmd.Addr & 0x1ffff) << 9
	if cmd.Index == SD_IO_RW_DIRECT {
		if cmd.RAW {
			arg |= 1 << 27
		}
		return arg | uint32(cmd.Data)
	}
	if cmd.Block {
		arg |= 1 << 27
	}
	if cmd.IncAddr {
		arg |= 1 << 26
	}
	return arg | uint32(cmd.Count&0x1ff)
}

// AppendToken appends the 6 byte SPI mode command token of cmd to dst.
func (cmd IOCommand) AppendToken(dst []byte) []byte {
	var tok [SD_CMD_TOKEN_LEN]byte
	tok[0] = 0x40 | cmd.Index&0x3f
	binary.BigEndian.PutUint32(tok[1:], cmd.Arg())
	tok[5] = CRC7(tok[:5])<<1 | 1
	return append(dst, tok[:]...)
}

// DecodeToken decodes a SPI mode command token. The CRC7 is checked.
func DecodeToken(tok []byte) (IOCommand, error) {
	if len(tok) < SD_CMD_TOKEN_LEN || tok[0]&0xc0 != 0x40 || tok[5]&1 == 0 {
		return IOCommand{}, ErrBadToken
	}
	cmd, err := ParseIOArg(tok[0]&0x3f, binary.BigEndian.Uint32(tok[1:5]))
	if err != nil {
		return cmd, err
	}
	if CRC7(tok[:5]) != tok[5]>>1 {
		return cmd, ErrBadCRC
	}
	return cmd, nil
}

// TransferLen is the number of data bytes moved by a CMD53. Zero means an
// open-ended block transfer.
func (cmd IOCommand) TransferLen() int {
	switch {
	case cmd.Index != SD_IO_RW_EXTENDED:
		return 1
	case cmd.Block:
		return int(cmd.Count) * BlockSize
	case cmd.Count == 0:
		return BlockSize
	}
	return int(cmd.Count)
}

func (cmd IOCommand) String() string {
	dir := "R"
	if cmd.Write {
		dir = "W"
	}
	s := "CMD" + strconv.Itoa(int(cmd.Index)) + " " + dir + " fn=" + strconv.Itoa(int(cmd.Fn)) +
		" addr=0x" + strconv.FormatUint(uint64(cmd.Addr), 16)
	if name := RegisterName(cmd.Fn, cmd.Addr); name != "" {
		s += "(" + name + ")"
	}
	if cmd.Index == SD_IO_RW_DIRECT {
		if cmd.Write {
			s += " data=0x" + strconv.FormatUint(uint64(cmd.Data), 16)
		}
		if cmd.RAW {
			s += " raw"
		}
		return s
	}
	mode := " bytes="
	if cmd.Block {
		mode = " blocks="
	}
	s += mode + strconv.Itoa(int(cmd.Count))
	if cmd.IncAddr {
		s += " inc"
	}
	return s
}

// CRC7 computes the SD command CRC (x^7 + x^3 + 1) of data.
func CRC7(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			feedback := (b>>i)&1 ^ (crc>>6)&1
			crc = (crc << 1) & 0x7f
			if feedback != 0 {
				crc ^= 0x09
			}
		}
	}
	return crc
}

var registerNames = map[uint32]string{
	SQN_SDIO_IT_EN_LSBS:     "IT_EN_LSBS",
	SQN_SDIO_IT_EN_MSBS:     "IT_EN_MSBS",
	SQN_SDIO_IT_STATUS_LSBS: "IT_STATUS_LSBS",
	SQN_SDIO_IT_STATUS_MSBS: "IT_STATUS_MSBS",
	SQN_SDIO_WR_FIFO_LEVEL:  "WR_FIFO_LEVEL",
	SQN_H_BOOT_FROM_SPI:     "BOOT_FROM_SPI",
	SQN_H_CISTPLMID_MANF:    "CISTPLMID_MANF",
	SQN_H_CISTPLMID_CARD:    "CISTPLMID_CARD",
}

func init() {
	for fifo := uint32(0); fifo <= DataFIFO; fifo++ {
		n := "(" + strconv.Itoa(int(fifo)) + ")"
		registerNames[SQN_SDIO_RD_FIFO_LEVEL(fifo)] = "RD_FIFO_LEVEL" + n
		registerNames[SQN_SDIO_RDLEN_FIFO(fifo)] = "RDLEN_FIFO" + n
		registerNames[SQN_SDIO_WM_RD_FIFO(fifo)] = "WM_RD_FIFO" + n
		registerNames[SQN_SDIO_RSTN_WR_FIFO(fifo)] = "RSTN_WR_FIFO" + n
		registerNames[SQN_SDIO_RDWR_FIFO(fifo)] = "RDWR_FIFO" + n
	}
}

// RegisterName returns the name of a register of function fn, or the empty
// string if it is not one the driver uses.
func RegisterName(fn uint8, addr uint32) string {
	switch fn {
	case 0:
		if addr == SDIO_CCCR_IO_ABORT {
			return "CCCR_IO_ABORT"
		}
		return ""
	case 1:
		return registerNames[addr]
	}
	return ""
}

// BlockData returns the CMD53 data carried in line, the bytes that follow the
// command token on the line that transfers data. Data starts after the first
// start token and is trimmed to the transfer length. Returns nil when no start
// token is found.
func (cmd IOCommand) BlockData(line []byte) []byte {
	for i, b := range line {
		if b != SD_TOKEN_START_BLOCK && b != SD_TOKEN_START_MULTI_WRITE {
			continue
		}
		data := line[i+1:]
		if n := cmd.TransferLen(); n > 0 && len(data) > n {
			data = data[:n]
		}
		return data
	}
	return nil
}
