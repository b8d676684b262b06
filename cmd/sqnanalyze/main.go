package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
	"github.com/soypat/sqnsdio/sqn"
)

// Optional flags.
var (
	timingsOutput string
)

type BusCtl struct {
	OmitReadData bool
	OmitRead     bool
	OmitWrite    bool
	// DecodePDU prints the PDU length prefix of data FIFO block writes.
	DecodePDU bool
	logger    *slog.Logger
}

func main() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(handler)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "sqnanalyze - Process Binary Saleae digital data files of SDIO SPI mode transactions with a Sequans card.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	mosi := flag.String("f-mosi", "digital_1.bin", "Input filename: SPI host to card data (CMD line).")
	miso := flag.String("f-miso", "digital_3.bin", "Input filename: SPI card to host data (DAT0 line).")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS/SS data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI clock data.")
	output := flag.String("o-cmd", "commands.txt", "Output filename of CMD52/CMD53 transactions.")

	flag.StringVar(&timingsOutput, "o-time", "", "Output timing data to a file corresponding to output command history line-by-line.")
	omitReadData := flag.Bool("omit-read-data", false, "Choose to omit read data in output.")
	omitReadAll := flag.Bool("omit-read", false, "Choose to omit read commands in output.")
	omitWriteAll := flag.Bool("omit-write", false, "Choose to omit write commands in output.")
	decodePDU := flag.Bool("pdu", true, "Decode PDU length of data FIFO writes.")
	flag.Parse()
	BUS := BusCtl{
		OmitReadData: *omitReadData,
		OmitRead:     *omitReadAll,
		OmitWrite:    *omitWriteAll,
		DecodePDU:    *decodePDU,
		logger:       logger,
	}
	if BUS.OmitRead && BUS.OmitWrite {
		log.Fatal("cannot omit both read and write commands")
	}
	start := time.Now()
	if err := BUS.run(*mosi, *miso, *enable, *clk, *output); err != nil {
		log.Fatal(err.Error())
	}
	log.Println("finished in", time.Since(start))
}

func (bus *BusCtl) run(mosi, miso, enable, clk, output string) error {
	commands, err := bus.processSpiFiles(mosi, miso, clk, enable)
	if err != nil {
		return err
	}
	fp, err := os.Create(output)
	if err != nil {
		return err
	}
	defer fp.Close()

	var timings *os.File
	if timingsOutput != "" {
		log.Println("creating timings file", timingsOutput)
		timings, err = os.Create(timingsOutput)
		if err != nil {
			return err
		}
		defer timings.Close()
	}
	for _, action := range commands {
		line, ok := bus.format(action)
		if !ok {
			continue
		}
		if _, err = fmt.Fprintln(fp, line); err != nil {
			return err
		}
		if timings != nil {
			fmt.Fprintf(timings, "t=%f\tdata=%#x\n", action.Start, action.Data)
		}
	}
	return nil
}

// format renders one transaction line. ok is false for omitted transactions.
func (bus *BusCtl) format(action sdiotx) (line string, ok bool) {
	const fmtMsg = "cmd×%2d %s"
	if action.Err != nil {
		return fmt.Sprintf(fmtMsg+" err=%v raw=%#x", action.Num, "invalid", action.Err, action.Data), true
	}
	if (bus.OmitRead && !action.Cmd.Write) || (bus.OmitWrite && action.Cmd.Write) {
		return "", false
	}
	data := action.Data
	if bus.OmitReadData && !action.Cmd.Write {
		data = nil
	}
	line = fmt.Sprintf(fmtMsg, action.Num, action.Cmd.String())
	if bus.DecodePDU && action.Cmd.Write && action.Cmd.Addr == sqn.SQN_SDIO_RDWR_FIFO(sqn.DataFIFO) {
		if payload, err := sqn.Decode(data); err == nil {
			line += fmt.Sprintf(" pdu=%d", len(payload))
		} else {
			line += " pdu=" + err.Error()
		}
	}
	if len(data) > 0 && action.Cmd.Index == sqn.SD_IO_RW_EXTENDED {
		line += fmt.Sprintf(" data=%#x", data)
	}
	return line, true
}

func (bus *BusCtl) processSpiFiles(fmosi, fmiso, fclk, fenable string) ([]sdiotx, error) {
	mosi, err := opendigital(fmosi)
	if err != nil {
		return nil, err
	}
	miso, err := opendigital(fmiso)
	if err != nil {
		return nil, err
	}
	clk, err := opendigital(fclk)
	if err != nil {
		return nil, err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return nil, err
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, mosi, miso)
	raw := make([]spitx, len(txs))
	for i := range txs {
		raw[i] = spitx{mosi: txs[i].SDO, miso: txs[i].SDI, start: txs[i].StartTime()}
	}
	return bus.process(raw), nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}

// spitx is one chip select window as seen on both data lines.
type spitx struct {
	mosi, miso []byte
	start      float64
}

type sdiotx struct {
	Num   int
	Cmd   sqn.IOCommand
	Data  []byte
	Err   error
	Start float64
}

// decodeTx finds the command token on the host line and the data that
// belongs to it: after a start token on the host line for writes, on the card
// line for reads.
func decodeTx(tx spitx) (cmd sqn.IOCommand, data []byte, err error) {
	at := -1
	for i := 0; i+sqn.SD_CMD_TOKEN_LEN <= len(tx.mosi); i++ {
		if tx.mosi[i]&0xc0 == 0x40 {
			at = i
			break
		}
	}
	if at < 0 {
		return cmd, tx.mosi, sqn.ErrBadToken
	}
	cmd, err = sqn.DecodeToken(tx.mosi[at:])
	if err != nil {
		return cmd, tx.mosi[at:], err
	}
	if cmd.Index != sqn.SD_IO_RW_EXTENDED {
		return cmd, nil, nil
	}
	line := tx.miso
	if cmd.Write {
		line = tx.mosi
	}
	return cmd, cmd.BlockData(line[min(len(line), at+sqn.SD_CMD_TOKEN_LEN):]), nil
}

// process decodes transactions and folds consecutive identical ones, such as
// status polls, into one entry.
func (bus *BusCtl) process(txs []spitx) (out []sdiotx) {
	for i := 0; i < len(txs); i++ {
		cmd, data, err := decodeTx(txs[i])
		acc := sdiotx{Num: 1, Cmd: cmd, Data: data, Err: err, Start: txs[i].start}
		for j := i + 1; j < len(txs); j++ {
			nextcmd, nextdata, nexterr := decodeTx(txs[j])
			if nextcmd != cmd || string(nextdata) != string(data) || (nexterr == nil) != (err == nil) {
				break
			}
			acc.Num++
			i = j
		}
		if err != nil && bus.logger != nil {
			bus.logger.Debug("undecoded transaction", slog.Float64("t", acc.Start), slog.String("err", err.Error()))
		}
		out = append(out, acc)
	}
	return out
}
