package tracker

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type packet struct {
	first byte
	body  []byte
}

// fakeBroker answers CONNECT with an accepted CONNACK and reports every
// packet it reads.
func fakeBroker(t *testing.T, conn net.Conn, pkts chan<- packet) {
	t.Helper()
	go func() {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			first, err := r.ReadByte()
			if err != nil {
				return
			}
			remaining, err := binary.ReadUvarint(r)
			if err != nil {
				return
			}
			body := make([]byte, remaining)
			if _, err = io.ReadFull(r, body); err != nil {
				return
			}
			pkts <- packet{first: first, body: body}
			if first>>4 == 1 { // CONNECT
				if _, err = conn.Write([]byte{0x20, 2, 0, 0}); err != nil {
					return
				}
			}
		}
	}()
}

func pipeDialer(t *testing.T, pkts chan packet, dials *int) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		*dials++
		client, server := net.Pipe()
		fakeBroker(t, server, pkts)
		return client, nil
	}
}

func TestRequestReset(t *testing.T) {
	pkts := make(chan packet, 16)
	var dials int
	n, err := New(Config{
		Broker:  "tracker:1883",
		Topic:   "wimax/reset",
		Dial:    pipeDialer(t, pkts, &dials),
		Timeout: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, n.RequestReset("tx pump failed repeatedly"))
	connect := <-pkts
	require.Equal(t, byte(1), connect.first>>4)

	pub := <-pkts
	require.Equal(t, byte(3), pub.first>>4)
	topicLen := int(binary.BigEndian.Uint16(pub.body))
	require.Equal(t, "wimax/reset", string(pub.body[2:2+topicLen]))
	require.Equal(t, ResetMessage, string(pub.body[2+topicLen:]))

	// Connection is reused.
	require.NoError(t, n.RequestReset("again"))
	pub = <-pkts
	require.Equal(t, byte(3), pub.first>>4)
	require.Equal(t, 1, dials)
	require.Equal(t, 2, n.Sent())
	require.Equal(t, uint16(2), n.packetID)

	n.Close()
	require.NoError(t, n.Close(), "second close is a no-op")
}

func TestPacketIDSkipsZero(t *testing.T) {
	n, err := New(Config{Broker: "tracker:1883", Topic: "wimax/reset"})
	require.NoError(t, err)
	require.Equal(t, uint16(1), n.nextPacketID())
	n.packetID = 0xffff
	require.Equal(t, uint16(1), n.nextPacketID(), "wrap skips zero")
	require.Equal(t, uint16(2), n.nextPacketID())
}

func TestRequestResetDialError(t *testing.T) {
	errRefused := errors.New("connection refused")
	n, err := New(Config{
		Broker: "tracker:1883",
		Topic:  "wimax/reset",
		Dial: func(context.Context, string, string) (net.Conn, error) {
			return nil, errRefused
		},
	})
	require.NoError(t, err)
	require.ErrorIs(t, n.RequestReset("x"), errRefused)
	require.Zero(t, n.Sent())
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Topic: "t"})
	require.Error(t, err)
	_, err = New(Config{Broker: "b:1883"})
	require.Error(t, err)
}
