package ike

import (
	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// alwaysAcceptable payloads may appear in any message regardless of the
// transition's masks
var alwaysAcceptable = state.P(
	protocol.PayloadTypeVID,
	protocol.PayloadTypeN,
	protocol.PayloadTypeD,
	protocol.PayloadTypeCR,
	protocol.PayloadTypeCERT,
)

// parsePayloads walks the linked next-payload chain of body against the
// transition's required and optional payload masks, chaining payloads
// of the same type in arrival order. On return every required payload
// has been seen and the ordering constraints of RFC 2409 hold.
func parsePayloads(md *Message, body []byte, trans *state.Transition, sa *Sa, log *logrus.Logger) error {
	md.Payloads = protocol.MakePayloads()
	phase1 := trans.State.IsPhase1() || trans.State.IsPhase15()
	needed := trans.Req
	np := md.Header.NextPayload
	origLen := len(body)

	for np != protocol.PayloadTypeNone {
		if len(md.Payloads.Array) >= maxPayloadsPerMessage {
			return errors.Wrapf(protocol.ErrInvalidSyntax,
				"more than %d payloads in message", maxPayloadsPerMessage)
		}
		ph := &protocol.PayloadHeader{}
		if err := ph.DecodeHeader(body); err != nil {
			return err
		}
		if len(body) < protocol.PAYLOAD_HEADER_LENGTH+int(ph.PayloadLength) {
			return errors.Wrapf(protocol.ErrInvalidSyntax,
				"payload %s truncated", np)
		}
		pbody := body[protocol.PAYLOAD_HEADER_LENGTH : protocol.PAYLOAD_HEADER_LENGTH+ph.PayloadLength]
		rest := body[protocol.PAYLOAD_HEADER_LENGTH+ph.PayloadLength:]

		switch np {
		case protocol.PayloadTypeSAK:
			// Group DOI payload we don't implement; ancient Cisco NAT
			// drafts abused the number. Skip it rather than reject.
			log.Warnf("message with unsupported payload SAK ignored")
			np = ph.NextPayload
			body = rest
			continue

		case protocol.PayloadTypeNATDDrafts:
			np = protocol.PayloadTypeNATD
		case protocol.PayloadTypeNATOADrafts:
			np = protocol.PayloadTypeNATOA
		}

		if np == protocol.PayloadTypeNATD || np == protocol.PayloadTypeNATOA {
			// negotiated in main mode only; aggressive mode has no
			// NAT-T method negotiation
			if sa == nil || sa.Connection == nil ||
				sa.Connection.Config.Aggressive ||
				!sa.hidden.NatTraversalRFC {
				return errors.Wrapf(protocol.ErrInvalidPayloadType,
					"%s without negotiated RFC NAT-T", np)
			}
		}

		pl := protocol.MakePayload(np, phase1)
		if pl == nil {
			return errors.Wrapf(protocol.ErrInvalidPayloadType,
				"unknown payload type %s at the outermost level", np)
		}
		if !needed.Has(np) && !trans.Opt.Has(np) && !alwaysAcceptable.Has(np) {
			return errors.Wrapf(protocol.ErrInvalidPayloadType,
				"payload %s unexpected by state %s", np, trans.State)
		}
		if err := pl.Decode(pbody); err != nil {
			return errors.Wrapf(protocol.ErrInvalidSyntax, "malformed %s payload: %s", np, err)
		}
		*pl.Header() = *ph
		md.Payloads.Add(pl)
		needed = needed.Without(np)

		np = ph.NextPayload
		body = rest
	}

	// whatever remains is encryption padding
	md.parsedLen = origLen - len(body)

	if !needed.Empty() {
		return errors.Wrapf(protocol.ErrInvalidSyntax,
			"message for %s is missing payloads %s", trans.State, needed)
	}
	return checkOrdering(md, trans)
}

// checkOrdering enforces RFC 2409's placement rules after the walk
func checkOrdering(md *Message, trans *state.Transition) error {
	from := trans.State
	if from.IsPhase1() || from.IsPhase15() {
		// "The SA payload MUST precede all other payloads in a phase 1
		// exchange."
		if md.Payloads.Get(protocol.PayloadTypeSA) != nil &&
			md.Header.NextPayload != protocol.PayloadTypeSA {
			return errors.Wrap(protocol.ErrInvalidSyntax,
				"malformed phase 1 message: does not start with an SA payload")
		}
		return nil
	}
	if !from.IsQuick() {
		return nil
	}

	// "In Quick Mode, a HASH payload MUST immediately follow the ISAKMP
	// header and a SA payload MUST immediately follow the HASH."
	if md.Header.NextPayload != protocol.PayloadTypeHASH {
		return errors.Wrap(protocol.ErrInvalidSyntax,
			"malformed quick mode message: does not start with a HASH payload")
	}
	for i, pl := range md.Payloads.Chain(protocol.PayloadTypeSA) {
		if md.Payloads.Index(pl) != i+1 {
			return errors.Wrap(protocol.ErrInvalidSyntax,
				"malformed quick mode message: SA payload is in wrong position")
		}
	}
	// "the identities of the parties MUST be passed as IDci and then
	// IDcr": exactly two, adjacent
	if ids := md.Payloads.Chain(protocol.PayloadTypeID); len(ids) > 0 {
		if len(ids) != 2 {
			return errors.Wrap(protocol.ErrInvalidSyntax,
				"malformed quick mode message: if any ID payload is present, there must be exactly two")
		}
		if md.Payloads.Index(ids[1]) != md.Payloads.Index(ids[0])+1 {
			return errors.Wrap(protocol.ErrInvalidSyntax,
				"malformed quick mode message: the ID payloads are not adjacent")
		}
	}
	return nil
}

// noteOf classifies a decode error into the notification to emit
func noteOf(err error) protocol.NotificationType {
	if ikeErr, ok := errors.Cause(err).(protocol.IkeError); ok {
		return ikeErr.Notification()
	}
	return protocol.PAYLOAD_MALFORMED
}
