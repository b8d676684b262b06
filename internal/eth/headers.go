// package eth decodes and builds the Ethernet, ARP, IPv4, UDP and TCP headers
// carried by the WiMAX data path. It is used for packet dumps and to build
// test traffic.
package eth

import (
	"encoding/binary"
	"net"
	"strconv"

	"github.com/soypat/lneto"
	"github.com/soypat/seqs"
)

const (
	SizeEthernetHeader = 14
	SizeIPv4Header     = 20
	SizeUDPHeader      = 8
	SizeTCPHeader      = 20
	SizeARPv4Header    = 28

	IPProtoICMP = 1
	IPProtoTCP  = 6
	IPProtoUDP  = 17
)

// EthernetHeader is a 14 byte ethernet header. VLAN tags are not decoded.
type EthernetHeader struct {
	Destination     [6]byte // 0:6
	Source          [6]byte // 6:12
	SizeOrEtherType uint16  // 12:14
}

// DecodeEthernetHeader decodes the first 14 bytes of b. Panics if b is shorter.
func DecodeEthernetHeader(b []byte) (ethdr EthernetHeader) {
	_ = b[13]
	copy(ethdr.Destination[:], b[0:6])
	copy(ethdr.Source[:], b[6:12])
	ethdr.SizeOrEtherType = binary.BigEndian.Uint16(b[12:14])
	return ethdr
}

// Put marshals the header onto buf. buf needs to be 14 bytes in length or Put panics.
func (ethdr *EthernetHeader) Put(buf []byte) {
	_ = buf[13]
	copy(buf[0:6], ethdr.Destination[:])
	copy(buf[6:12], ethdr.Source[:])
	binary.BigEndian.PutUint16(buf[12:14], ethdr.SizeOrEtherType)
}

// AssertType returns the Size or EtherType field as EtherType.
func (ethdr *EthernetHeader) AssertType() EtherType { return EtherType(ethdr.SizeOrEtherType) }

func (ethdr *EthernetHeader) IsVLAN() bool { return ethdr.SizeOrEtherType == uint16(EtherTypeVLAN) }

func (ethdr *EthernetHeader) String() string {
	return net.HardwareAddr(ethdr.Source[:]).String() + " -> " +
		net.HardwareAddr(ethdr.Destination[:]).String() + " " + ethdr.AssertType().String()
}

// IPv4Header is the 20 byte IPv4 header without options.
type IPv4Header struct {
	VersionAndIHL uint8   // 0:1
	ToS           uint8   // 1:2
	TotalLength   uint16  // 2:4
	ID            uint16  // 4:6
	Flags         uint16  // 6:8
	TTL           uint8   // 8:9
	Protocol      uint8   // 9:10
	Checksum      uint16  // 10:12
	Source        [4]byte // 12:16
	Destination   [4]byte // 16:20
}

// DecodeIPv4Header decodes a 20 byte IPv4 header from buf.
func DecodeIPv4Header(buf []byte) (iphdr IPv4Header) {
	_ = buf[19]
	iphdr.VersionAndIHL = buf[0]
	iphdr.ToS = buf[1]
	iphdr.TotalLength = binary.BigEndian.Uint16(buf[2:])
	iphdr.ID = binary.BigEndian.Uint16(buf[4:])
	iphdr.Flags = binary.BigEndian.Uint16(buf[6:])
	iphdr.TTL = buf[8]
	iphdr.Protocol = buf[9]
	iphdr.Checksum = binary.BigEndian.Uint16(buf[10:])
	copy(iphdr.Source[:], buf[12:16])
	copy(iphdr.Destination[:], buf[16:20])
	return iphdr
}

// Put marshals the header onto buf with version 4. buf needs to be 20 bytes
// in length or Put panics.
func (iphdr *IPv4Header) Put(buf []byte) {
	_ = buf[19]
	buf[0] = 4<<4 | iphdr.VersionAndIHL&0xf
	buf[1] = iphdr.ToS
	binary.BigEndian.PutUint16(buf[2:], iphdr.TotalLength)
	binary.BigEndian.PutUint16(buf[4:], iphdr.ID)
	binary.BigEndian.PutUint16(buf[6:], iphdr.Flags)
	buf[8] = iphdr.TTL
	buf[9] = iphdr.Protocol
	binary.BigEndian.PutUint16(buf[10:], iphdr.Checksum)
	copy(buf[12:16], iphdr.Source[:])
	copy(buf[16:20], iphdr.Destination[:])
}

// IHL is the header length in 32 bit words.
func (iphdr *IPv4Header) IHL() uint8 { return iphdr.VersionAndIHL & 0xf }

// HeaderLength is the header length in bytes, options included.
func (iphdr *IPv4Header) HeaderLength() int { return 4 * int(iphdr.IHL()) }

// CalculateChecksum returns the RFC 791 checksum of the header with the
// checksum field zeroed.
func (iphdr *IPv4Header) CalculateChecksum() uint16 {
	var buf [SizeIPv4Header]byte
	hdr := *iphdr
	hdr.Checksum = 0
	hdr.Put(buf[:])
	var crc lneto.CRC791
	crc.Write(buf[:])
	return crc.Sum16()
}

func (iphdr *IPv4Header) String() string {
	return "IPv4 " + net.IP(iphdr.Source[:]).String() + " -> " + net.IP(iphdr.Destination[:]).String() +
		" proto=" + strconv.Itoa(int(iphdr.Protocol)) + " len=" + strconv.Itoa(int(iphdr.TotalLength))
}

// UDPHeader is the 8 byte UDP header.
type UDPHeader struct {
	SourcePort      uint16 // 0:2
	DestinationPort uint16 // 2:4
	Length          uint16 // 4:6
	Checksum        uint16 // 6:8
}

func DecodeUDPHeader(buf []byte) (udp UDPHeader) {
	_ = buf[7]
	udp.SourcePort = binary.BigEndian.Uint16(buf[0:])
	udp.DestinationPort = binary.BigEndian.Uint16(buf[2:])
	udp.Length = binary.BigEndian.Uint16(buf[4:])
	udp.Checksum = binary.BigEndian.Uint16(buf[6:])
	return udp
}

// Put marshals the header onto buf. buf needs to be 8 bytes in length or Put panics.
func (udp *UDPHeader) Put(buf []byte) {
	_ = buf[7]
	binary.BigEndian.PutUint16(buf[0:], udp.SourcePort)
	binary.BigEndian.PutUint16(buf[2:], udp.DestinationPort)
	binary.BigEndian.PutUint16(buf[4:], udp.Length)
	binary.BigEndian.PutUint16(buf[6:], udp.Checksum)
}

func (udp *UDPHeader) String() string {
	return "UDP port " + u16toa(udp.SourcePort) + "->" + u16toa(udp.DestinationPort) +
		" len=" + u16toa(udp.Length)
}

// TCPHeader is the 20 byte TCP header without options.
type TCPHeader struct {
	SourcePort      uint16     // 0:2
	DestinationPort uint16     // 2:4
	Seq             seqs.Value // 4:8
	Ack             seqs.Value // 8:12
	OffsetAndFlags  uint16     // 12:14 offset in the upper 4 bits
	WindowSizeRaw   uint16     // 14:16
	Checksum        uint16     // 16:18
	UrgentPtr       uint16     // 18:20
}

const tcpFlagmask = 0x01ff

func DecodeTCPHeader(buf []byte) (tcp TCPHeader) {
	_ = buf[19]
	tcp.SourcePort = binary.BigEndian.Uint16(buf[0:])
	tcp.DestinationPort = binary.BigEndian.Uint16(buf[2:])
	tcp.Seq = seqs.Value(binary.BigEndian.Uint32(buf[4:]))
	tcp.Ack = seqs.Value(binary.BigEndian.Uint32(buf[8:]))
	tcp.OffsetAndFlags = binary.BigEndian.Uint16(buf[12:])
	tcp.WindowSizeRaw = binary.BigEndian.Uint16(buf[14:])
	tcp.Checksum = binary.BigEndian.Uint16(buf[16:])
	tcp.UrgentPtr = binary.BigEndian.Uint16(buf[18:])
	return tcp
}

// Put marshals the header onto buf. buf needs to be 20 bytes in length or Put panics.
func (tcp *TCPHeader) Put(buf []byte) {
	_ = buf[19]
	binary.BigEndian.PutUint16(buf[0:], tcp.SourcePort)
	binary.BigEndian.PutUint16(buf[2:], tcp.DestinationPort)
	binary.BigEndian.PutUint32(buf[4:], uint32(tcp.Seq))
	binary.BigEndian.PutUint32(buf[8:], uint32(tcp.Ack))
	binary.BigEndian.PutUint16(buf[12:], tcp.OffsetAndFlags)
	binary.BigEndian.PutUint16(buf[14:], tcp.WindowSizeRaw)
	binary.BigEndian.PutUint16(buf[16:], tcp.Checksum)
	binary.BigEndian.PutUint16(buf[18:], tcp.UrgentPtr)
}

func (tcp *TCPHeader) Flags() seqs.Flags { return seqs.Flags(tcp.OffsetAndFlags & tcpFlagmask) }

func (tcp *TCPHeader) SetFlags(v seqs.Flags) {
	tcp.OffsetAndFlags = tcp.OffsetAndFlags&^tcpFlagmask | uint16(v)&tcpFlagmask
}

// Offset is the header length in 32 bit words.
func (tcp *TCPHeader) Offset() uint8 { return uint8(tcp.OffsetAndFlags >> 12) }

func (tcp *TCPHeader) SetOffset(words uint8) {
	tcp.OffsetAndFlags = tcp.OffsetAndFlags&tcpFlagmask | uint16(words&0xf)<<12
}

func (tcp *TCPHeader) String() string {
	return "TCP port " + u16toa(tcp.SourcePort) + "->" + u16toa(tcp.DestinationPort) + " " +
		tcp.Flags().String() + " seq " + strconv.FormatUint(uint64(tcp.Seq), 10) +
		" ack " + strconv.FormatUint(uint64(tcp.Ack), 10)
}

// ARPv4Header is the 28 byte ARP header for IPv4 over Ethernet.
type ARPv4Header struct {
	HardwareType   uint16  // 0:2
	ProtoType      uint16  // 2:4
	HardwareLength uint8   // 4:5
	ProtoLength    uint8   // 5:6
	Operation      uint16  // 6:8 1 request, 2 reply
	HardwareSender [6]byte // 8:14
	ProtoSender    [4]byte // 14:18
	HardwareTarget [6]byte // 18:24
	ProtoTarget    [4]byte // 24:28
}

func DecodeARPv4Header(buf []byte) (arp ARPv4Header) {
	_ = buf[27]
	arp.HardwareType = binary.BigEndian.Uint16(buf[0:])
	arp.ProtoType = binary.BigEndian.Uint16(buf[2:])
	arp.HardwareLength = buf[4]
	arp.ProtoLength = buf[5]
	arp.Operation = binary.BigEndian.Uint16(buf[6:])
	copy(arp.HardwareSender[:], buf[8:14])
	copy(arp.ProtoSender[:], buf[14:18])
	copy(arp.HardwareTarget[:], buf[18:24])
	copy(arp.ProtoTarget[:], buf[24:28])
	return arp
}

func (arp *ARPv4Header) String() string {
	if arp.Operation == 1 {
		return "ARP who has " + net.IP(arp.ProtoTarget[:]).String() + "? tell " + net.IP(arp.ProtoSender[:]).String()
	}
	return "ARP " + net.IP(arp.ProtoSender[:]).String() + " is at " + net.HardwareAddr(arp.HardwareSender[:]).String()
}

func u16toa(u uint16) string { return strconv.FormatUint(uint64(u), 10) }
