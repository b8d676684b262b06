package main

import (
	"strconv"
	"strings"
	"testing"

	"github.com/soypat/sqnsdio/sqn"
)

// samples renders bytes as CSV records of a mode 0 SPI capture.
func samples(data []byte) (records [][]string) {
	rec := func(cs, mosi, clk int) {
		records = append(records, []string{"0", strconv.Itoa(cs), strconv.Itoa(mosi), strconv.Itoa(clk)})
	}
	rec(1, 1, 0)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bit := int(b>>i) & 1
			rec(0, bit, 0)
			rec(0, bit, 1)
		}
	}
	rec(0, 1, 0)
	rec(1, 1, 0)
	return records
}

func TestCaptures(t *testing.T) {
	ack := sqn.IOCommand{Index: sqn.SD_IO_RW_DIRECT, Write: true, Fn: 1, Addr: sqn.SQN_SDIO_IT_STATUS_LSBS, Data: 0x20}
	tok := ack.AppendToken([]byte{0xff})
	records := append(samples(tok), samples(tok)...)
	txs := captures(records)
	if len(txs) != 2 {
		t.Fatalf("want 2 transactions, got %d", len(txs))
	}
	if string(txs[0]) != string(tok) {
		t.Fatalf("got %x, want %x", txs[0], tok)
	}
	line := describe(txs[0], nil, false)
	if !strings.Contains(line, "IT_STATUS_LSBS") || !strings.Contains(line, "data=0x20") {
		t.Errorf("unexpected line %q", line)
	}
	omit, err := parseAddrs("0x2012, 2013")
	if err != nil {
		t.Fatal(err)
	}
	if describe(txs[0], omit, false) != "" {
		t.Error("omitted address printed")
	}
	if !strings.HasPrefix(describe([]byte{0x12, 0x34}, nil, false), "invalid") {
		t.Error("garbage not flagged")
	}
}

func TestDescribeWrite(t *testing.T) {
	frame := []byte("uplink")
	pdu := make([]byte, sqn.PaddedLen(len(frame)))
	if _, err := sqn.Encode(pdu, frame); err != nil {
		t.Fatal(err)
	}
	write := sqn.IOCommand{Index: sqn.SD_IO_RW_EXTENDED, Write: true, Fn: 1, Addr: sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO), Block: true, Count: 1}
	c := write.AppendToken([]byte{0xff})
	c = append(c, 0xff, 0x00, 0xff, sqn.SD_TOKEN_START_MULTI_WRITE)
	c = append(c, pdu...)
	line := describe(c, nil, false)
	if !strings.Contains(line, "pdu=6") || !strings.Contains(line, "0a007570 ") {
		t.Errorf("unexpected line %q", line)
	}
}
