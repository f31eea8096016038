package ike

import (
	"github.com/msgboxio/ikev1/protocol"
)

// CertResult is the outcome of certificate payload processing
type CertResult int

const (
	CertNone CertResult = iota
	CertBad
	CertMismatchedId
	CertIdOk
)

// CertVerifier validates CERT payload chains against a claimed peer
// identity; the actual X.509 machinery lives outside the core.
type CertVerifier interface {
	Verify(certs []*protocol.CertPayload, peer PeerId) CertResult
}

type nullCertVerifier struct{}

func (nullCertVerifier) Verify(certs []*protocol.CertPayload, peer PeerId) CertResult {
	if len(certs) == 0 {
		return CertNone
	}
	return CertIdOk
}

// decodePeerId processes the first authenticated Phase 1 ID payload:
// extracts the claimed identity, runs certificate processing, and on
// the Main Mode responder reconciles the identity against the
// connection table, possibly rebinding the SA to a better matching
// connection. May recurse exactly once after a switch.
//
// note: may change which connection sa.Connection references, but only
// if we are a Main Mode responder.
func (e *Engine) decodePeerId(sa *Sa, md *Message, initiator, aggrmode bool) bool {
	return e.decodePeerIdDepth(sa, md, initiator, aggrmode, 0)
}

func (e *Engine) decodePeerIdDepth(sa *Sa, md *Message, initiator, aggrmode bool, depth int) bool {
	log := e.log
	conn := sa.Connection
	idPl, ok := md.Get(protocol.PayloadTypeID).(*protocol.IdPayload)
	if !ok || idPl == nil {
		log.Warn("phase 1 message is missing its ID payload")
		return false
	}

	// RFC 2407 4.6.2 talks about Protocol ID and Port fields in the
	// Phase 1 ID payload; there is no good reason for them to be other
	// than 0/0 or UDP/500. Warn and continue: CISCO VPN3000 and friends
	// get this wrong.
	protoOk := (idPl.DoiSpecificA == 0 && idPl.DoiSpecificB == 0) ||
		(idPl.DoiSpecificA == 17 && idPl.DoiSpecificB == protocol.IKE_PORT)
	if sa.hidden.NatTraversalRFC && idPl.DoiSpecificA == 17 &&
		(idPl.DoiSpecificB == 0 || idPl.DoiSpecificB == protocol.IKE_NATT_PORT) {
		log.Debugf("protocol/port in phase 1 ID payload is %d/%d, accepted with port floating NAT-T",
			idPl.DoiSpecificA, idPl.DoiSpecificB)
		protoOk = true
	}
	if !protoOk {
		log.Warnf("protocol/port in phase 1 ID payload MUST be 0/0 or 17/%d but are %d/%d (attempting to continue)",
			protocol.IKE_PORT, idPl.DoiSpecificA, idPl.DoiSpecificB)
	}

	peer := PeerId{Kind: idPl.IdType, Data: append([]byte{}, idPl.Data...)}
	if len(peer.Data) == 0 {
		log.Warn("peer ID payload is empty")
		return false
	}
	log.Infof("peer ID is %d: %q", peer.Kind, peer.Data)

	if conn.PeerIdFromCert {
		// connection modified by %fromcert
		conn.PeerId = peer
	}

	// certificates
	var certs []*protocol.CertPayload
	for _, pl := range md.Chain(protocol.PayloadTypeCERT) {
		certs = append(certs, pl.(*protocol.CertPayload))
	}
	switch e.certVerifier.Verify(certs, peer) {
	case CertNone:
		log.Debug("X509: no CERT payloads to process")
	case CertBad:
		log.Warn("X509: CERT payload bogus or revoked")
		return false
	case CertMismatchedId:
		log.Warn("X509: CERT payload does not match connection ID")
		if initiator || aggrmode {
			// cannot switch connection so fail
			return false
		}
	case CertIdOk:
		log.Debug("X509: CERT and ID matches current connection")
	}

	// certificate requests are noted for the reply path
	for range md.Chain(protocol.PayloadTypeCR) {
		log.Debug("peer requested a certificate")
	}

	// Now that the ID payload is decoded, see if we need to switch
	// connections. Aggressive mode cannot switch. We must not switch
	// horses if we initiated: that would ignore the user's intent.
	if initiator {
		if !peer.Equal(conn.PeerId) && !conn.PeerIdWildcard && !conn.PeerIdFromCert {
			log.Warnf("we require IKEv1 peer to have ID %q, but peer declares %q",
				conn.PeerId.Data, peer.Data)
			return false
		}
		sa.peerIdentity = peer
		concretizeWildcard(conn, peer)
		return true
	}
	if aggrmode {
		if !conn.PeerIdWildcard && !conn.PeerIdFromCert && !peer.Equal(conn.PeerId) {
			log.Warn("aggressive mode peer ID mismatch and connection switching is not possible")
			return false
		}
		sa.peerIdentity = peer
		concretizeWildcard(conn, peer)
		return true
	}

	// Main Mode responder: refine against the connection table
	refined := e.conns.Refine(conn, peer, sa.AuthMethod())
	if refined == nil {
		// can we continue with what we had?
		if !peer.Equal(conn.PeerId) && !conn.PeerIdWildcard && !conn.PeerIdFromCert {
			log.Warn("peer mismatch on first found connection and no better connection found")
			return false
		}
		log.Debug("peer ID matches and no better connection found - continuing with existing connection")
		sa.peerIdentity = peer
		concretizeWildcard(conn, peer)
		return true
	}
	if refined == conn {
		sa.peerIdentity = peer
		concretizeWildcard(conn, peer)
		return true
	}

	// the refined connection is an improvement -- rebind and redo the
	// decode from scratch so the CERT payloads are checked against it.
	// Bounded to a single recursion.
	if depth > 0 {
		log.Warn("connection refinement recursed; keeping current connection")
		return false
	}
	log.Infof("switched from %q to %q", conn.Name, refined.Name)
	sa.Connection = refined
	return e.decodePeerIdDepth(sa, md, false, false, depth+1)
}

// concretizeWildcard pins a wildcard peer identity to the one the peer
// proved
func concretizeWildcard(conn *Connection, peer PeerId) {
	if conn.PeerIdWildcard {
		conn.PeerId = peer
		conn.PeerIdWildcard = false
	}
}
