package eth

import "strconv"

type EtherType uint16

// Ethertype values seen on the WiMAX link.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeVLAN EtherType = 0x8100
	EtherTypeIPv6 EtherType = 0x86DD
	// EtherTypeLocalExp1 is the IEEE 802 local experimental ethertype. The
	// card control plane uses it.
	EtherTypeLocalExp1 EtherType = 0x88B5
)

func (e EtherType) String() string {
	switch e {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeARP:
		return "ARP"
	case EtherTypeVLAN:
		return "VLAN"
	case EtherTypeIPv6:
		return "IPv6"
	case EtherTypeLocalExp1:
		return "LocalExp1"
	}
	if e <= 1500 {
		return "len=" + strconv.Itoa(int(e))
	}
	return "0x" + strconv.FormatUint(uint64(e), 16)
}
