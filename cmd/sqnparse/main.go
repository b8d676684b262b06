package main

import (
	"encoding/csv"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/soypat/sqnsdio/sqn"
)

// capture is the MOSI data clocked during one chip select assertion.
type capture []byte

func main() {
	fileName := flag.String("file", "digital.csv", "Path to the input file. Columns: time, CS, MOSI, CLK.")
	omitAddrs := flag.String("omit-addrs", "", "Omit commands with these addresses. Comma separated list of hex addresses.")
	hexDump := flag.Bool("hex-dump", false, "Do full hex.Dump() of written data")
	flag.Parse()

	omit, err := parseAddrs(*omitAddrs)
	if err != nil {
		log.Fatal(err)
	}
	fp, err := os.Open(*fileName)
	if err != nil {
		log.Fatal(err)
	}
	defer fp.Close()
	records, err := csv.NewReader(fp).ReadAll()
	if err != nil {
		log.Fatal(err)
	}
	if len(records) < 2 {
		log.Fatal("no samples in ", *fileName)
	}
	for _, c := range captures(records[1:]) {
		if line := describe(c, omit, *hexDump); line != "" {
			fmt.Println(line)
		}
	}
}

func parseAddrs(list string) (map[uint32]bool, error) {
	addrs := make(map[uint32]bool)
	if list == "" {
		return addrs, nil
	}
	for i, addr := range strings.Split(list, ",") {
		addr = strings.TrimPrefix(strings.TrimSpace(addr), "0x")
		v, err := strconv.ParseUint(addr, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing address %d: %w", i+1, err)
		}
		addrs[uint32(v)] = true
	}
	return addrs, nil
}

// describe decodes the command token of c and, for CMD53 writes, the block
// data that follows the start token.
func describe(c capture, omit map[uint32]bool, hexDump bool) string {
	at := 0
	for at < len(c) && c[at] == 0xff {
		at++ // Idle clocks before the token.
	}
	cmd, err := sqn.DecodeToken(c[at:])
	if err != nil {
		return fmt.Sprintf("invalid %x: %v", c[at:], err)
	}
	if omit[cmd.Addr] {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "arg=0x%08x %s", cmd.Arg(), cmd.String())
	if !cmd.Write || cmd.Index != sqn.SD_IO_RW_EXTENDED {
		return sb.String()
	}
	data := cmd.BlockData(c[at+sqn.SD_CMD_TOKEN_LEN:])
	if payload, err := sqn.Decode(data); err == nil {
		fmt.Fprintf(&sb, " pdu=%d", len(payload))
	}
	sb.WriteString("   ")
	for i := 0; i < len(data); i += 4 {
		sb.WriteString(hex.EncodeToString(data[i:min(i+4, len(data))]))
		sb.WriteByte(' ')
	}
	if hexDump {
		sb.WriteString("\n" + hex.Dump(data))
	}
	return sb.String()
}

// captures samples MOSI on rising clock edges while CS is low (SPI mode 0).
func captures(records [][]string) (out []capture) {
	var cur capture
	var b, nbits uint8
	cs, clk := 1, 0
	for _, rec := range records {
		if len(rec) < 4 {
			continue
		}
		ncs := atoi(rec[1])
		mosi := atoi(rec[2])
		nclk := atoi(rec[3])
		switch {
		case cs == 1 && ncs == 0:
			cur, b, nbits = nil, 0, 0
		case cs == 0 && ncs == 1 && len(cur) > 0:
			out = append(out, cur)
		}
		if ncs == 0 && clk == 0 && nclk == 1 {
			b = b<<1 | uint8(mosi&1)
			nbits++
			if nbits == 8 {
				cur = append(cur, b)
				b, nbits = 0, 0
			}
		}
		cs, clk = ncs, nclk
	}
	return out
}

func atoi(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}
