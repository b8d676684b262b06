package eth

import "strconv"

// Summary describes frame on one line, decoding as many headers as the
// frame length allows.
func Summary(frame []byte) string {
	if len(frame) < SizeEthernetHeader {
		return "short frame len=" + strconv.Itoa(len(frame))
	}
	ehdr := DecodeEthernetHeader(frame)
	s := ehdr.String()
	payload := frame[SizeEthernetHeader:]
	switch ehdr.AssertType() {
	case EtherTypeARP:
		if len(payload) >= SizeARPv4Header {
			arp := DecodeARPv4Header(payload)
			s += " | " + arp.String()
		}
	case EtherTypeIPv4:
		if len(payload) < SizeIPv4Header {
			break
		}
		ip := DecodeIPv4Header(payload)
		s += " | " + ip.String()
		hl := ip.HeaderLength()
		if hl < SizeIPv4Header || len(payload) < hl {
			break
		}
		payload = payload[hl:]
		switch ip.Protocol {
		case IPProtoUDP:
			if len(payload) >= SizeUDPHeader {
				udp := DecodeUDPHeader(payload)
				s += " | " + udp.String()
			}
		case IPProtoTCP:
			if len(payload) >= SizeTCPHeader {
				tcp := DecodeTCPHeader(payload)
				s += " | " + tcp.String()
			}
		}
	}
	return s
}

// UDPv4Frame builds an Ethernet IPv4 UDP frame carrying payload.
func UDPv4Frame(dst, src [6]byte, srcIP, dstIP [4]byte, srcPort, dstPort uint16, payload []byte) []byte {
	const hdrs = SizeEthernetHeader + SizeIPv4Header + SizeUDPHeader
	frame := make([]byte, hdrs+len(payload))
	ehdr := EthernetHeader{Destination: dst, Source: src, SizeOrEtherType: uint16(EtherTypeIPv4)}
	ehdr.Put(frame)
	ip := IPv4Header{
		VersionAndIHL: 5,
		TotalLength:   uint16(SizeIPv4Header + SizeUDPHeader + len(payload)),
		TTL:           64,
		Protocol:      IPProtoUDP,
		Source:        srcIP,
		Destination:   dstIP,
	}
	ip.Checksum = ip.CalculateChecksum()
	ip.Put(frame[SizeEthernetHeader:])
	udp := UDPHeader{
		SourcePort:      srcPort,
		DestinationPort: dstPort,
		Length:          uint16(SizeUDPHeader + len(payload)),
	}
	udp.Put(frame[SizeEthernetHeader+SizeIPv4Header:])
	copy(frame[hdrs:], payload)
	return frame
}
