package main

import (
	"encoding/hex"
	"strconv"
	"testing"

	"github.com/soypat/sqnsdio/sqn"
)

func TestDecode(t *testing.T) {
	want := sqn.IOCommand{Index: sqn.SD_IO_RW_EXTENDED, Fn: 1, Addr: sqn.SQN_SDIO_WR_FIFO_LEVEL, Count: 4, IncAddr: true}
	got, err := decode("0x"+strconv.FormatUint(uint64(want.Arg()), 16), sqn.SD_IO_RW_EXTENDED)
	if err != nil || got != want {
		t.Fatalf("argument: got %s, %v", got, err)
	}
	got, err = decode(hex.EncodeToString(want.AppendToken(nil)), 0)
	if err != nil || got != want {
		t.Fatalf("token: got %s, %v", got, err)
	}
	if _, err = decode("zz", 52); err == nil {
		t.Error("invalid hex accepted")
	}
}
