package ike

import (
	"bytes"
	"encoding/hex"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/sirupsen/logrus"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

var (
	// RFC 3706 A.1; trailing two bytes are the version
	vidDPD = mustHex("afcad71368a1f1c96b8696fc77570100")
	// draft-ietf-ipsec-nat-t-ike MD5("RFC 3947")
	vidNatTRFC = mustHex("4a131c81070358455c5728f20e95452f")
	// IKE fragmentation
	vidFragmentation = mustHex("4048b7d56ebce88525e7de7f00d6c2d3")
	// draft-beaulieu-ike-xauth-02
	vidXauth = mustHex("09002689dfd6b712")
	// Nortel Contivity
	vidNortel = []byte("BNES: Network Engines")
)

// scanVendorIds recognises the vendor IDs the engine reacts to, marking
// the digest. The dispatcher imports them into the SA's hidden
// variables only when the transition commits.
func scanVendorIds(md *Message, log *logrus.Logger) {
	for _, pl := range md.Chain(protocol.PayloadTypeVID) {
		vid := pl.(*protocol.VendorIdPayload).Data
		switch {
		case len(vid) >= 14 && bytes.Equal(vid[:14], vidDPD[:14]):
			md.dpdVid = true
		case bytes.Equal(vid, vidNatTRFC):
			md.nattVid = true
		case len(vid) >= 16 && bytes.Equal(vid[:16], vidFragmentation):
			md.fragVid = true
		case bytes.HasPrefix(vid, vidNortel):
			md.nortelVid = true
		case bytes.Equal(vid, vidXauth):
			// recognised, nothing to import
		default:
			log.Debugf("ignoring unknown vendor id %x", vid)
		}
	}
}

// VendorPayloads returns the VIDs we announce, driven by policy
func vendorPayloads(conn *Connection) (pls []protocol.Payload) {
	add := func(data []byte) {
		pls = append(pls, &protocol.VendorIdPayload{
			PayloadHeader: &protocol.PayloadHeader{}, Data: data})
	}
	if conn.Config.DPDEnabled {
		add(vidDPD)
	}
	if conn.Config.FragAllow {
		add(vidFragmentation)
	}
	if conn.Config.NatTraversal {
		add(vidNatTRFC)
	}
	if conn.XauthServer || conn.XauthClient {
		add(vidXauth)
	}
	return
}
