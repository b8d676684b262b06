package sqnsdio

import (
	"github.com/soypat/lneto/ethernet"
)

// DefaultControlEtherType is the ethertype of card control plane frames.
const DefaultControlEtherType ethernet.Type = 0x88b5

// EtherClassifier labels Ethernet frames as control plane traffic by their
// EtherType or destination address.
type EtherClassifier struct {
	// ControlType matches the EtherType field. Zero disables the match.
	ControlType ethernet.Type
	// ControlAddr matches the destination address. The zero address disables the match.
	ControlAddr [6]byte
}

func (c *EtherClassifier) Classify(frame []byte) Class {
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		// Not ours to judge, the stack drops malformed frames.
		return ClassData
	}
	if c.ControlType != 0 && efrm.EtherTypeOrSize() == c.ControlType {
		return ClassControl
	}
	if c.ControlAddr != ([6]byte{}) && *efrm.DestinationHardwareAddr() == c.ControlAddr {
		return ClassControl
	}
	return ClassData
}
