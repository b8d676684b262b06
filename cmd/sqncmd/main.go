package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/soypat/sqnsdio/sqn"
)

func main() {
	index := flag.Uint("cmd", sqn.SD_IO_RW_EXTENDED, "Command index of a bare argument, 52 or 53.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "sqncmd - decode a CMD52/CMD53 argument (8 hex digits) or SPI command token (12 hex digits).\n\tUsage: sqncmd [-cmd 52] 0x1c004020\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, err := decode(flag.Arg(0), uint8(*index))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s  arg=%#08x  xfer=%d\n", cmd.String(), cmd.Arg(), cmd.TransferLen())
}

func decode(s string, index uint8) (sqn.IOCommand, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) == 2*sqn.SD_CMD_TOKEN_LEN {
		tok, err := hex.DecodeString(s)
		if err != nil {
			return sqn.IOCommand{}, err
		}
		return sqn.DecodeToken(tok)
	}
	arg, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return sqn.IOCommand{}, err
	}
	return sqn.ParseIOArg(index, uint32(arg))
}
