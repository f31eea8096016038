//go:build linux

package platform

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// esp transform numbers from RFC 2407 4.4.4
const (
	espTransform3DES     = 3
	espTransformAES      = 12
	espTransformCamellia = 22
)

func espAlgName(transform uint8) (string, bool) {
	switch transform {
	case espTransform3DES:
		return "des3_ede", true
	case espTransformAES:
		return "cbc(aes)", true
	case espTransformCamellia:
		return "cbc(camellia)", true
	}
	return "", false
}

// split the negotiated keymat into cipher key and HMAC-SHA1 key
func splitKeymat(keymat []byte) (enc, auth []byte, err error) {
	if len(keymat) < 20 {
		return nil, nil, errors.Errorf("keymat too short: %d", len(keymat))
	}
	return keymat[:len(keymat)-20], keymat[len(keymat)-20:], nil
}

func xfrmState(sa *SaParams) (*netlink.XfrmState, error) {
	alg, ok := espAlgName(sa.EspTransform)
	if !ok {
		return nil, errors.Errorf("unsupported esp transform %d", sa.EspTransform)
	}
	enc, auth, err := splitKeymat(sa.Keymat)
	if err != nil {
		return nil, err
	}
	src, dst := sa.Local, sa.Remote
	spi := sa.SpiOut
	if sa.Direction == "in" {
		src, dst = sa.Remote, sa.Local
		spi = sa.SpiIn
	}
	mode := netlink.XFRM_MODE_TUNNEL
	if !sa.EncapTunnel {
		mode = netlink.XFRM_MODE_TRANSPORT
	}
	return &netlink.XfrmState{
		Src:   src,
		Dst:   dst,
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  mode,
		Spi:   int(spi),
		Auth:  &netlink.XfrmStateAlgo{Name: "hmac(sha1)", Key: auth, TruncateLen: 96},
		Crypt: &netlink.XfrmStateAlgo{Name: alg, Key: enc},
	}, nil
}

// InstallChildSa adds the xfrm state for one direction of a Phase 2 SA
func InstallChildSa(sa *SaParams, log *logrus.Logger) error {
	st, err := xfrmState(sa)
	if err != nil {
		return err
	}
	log.Debugf("xfrm state add %s->%s spi %#x", st.Src, st.Dst, st.Spi)
	if err := netlink.XfrmStateAdd(st); err != nil {
		return errors.Wrap(err, "xfrm state add")
	}
	return installPolicies(sa, log)
}

// RemoveChildSa withdraws the state and its policies
func RemoveChildSa(sa *SaParams, log *logrus.Logger) error {
	st, err := xfrmState(sa)
	if err != nil {
		return err
	}
	log.Debugf("xfrm state del %s->%s spi %#x", st.Src, st.Dst, st.Spi)
	if err := netlink.XfrmStateDel(st); err != nil {
		return errors.Wrap(err, "xfrm state del")
	}
	for _, pol := range policies(sa) {
		if err := netlink.XfrmPolicyDel(&pol); err != nil {
			log.Warnf("xfrm policy del: %s", err)
		}
	}
	return nil
}

func policies(sa *SaParams) (pols []netlink.XfrmPolicy) {
	localNet, remoteNet := sa.LocalNet, sa.RemoteNet
	if localNet == nil || remoteNet == nil {
		return
	}
	mode := netlink.XFRM_MODE_TUNNEL
	if !sa.EncapTunnel {
		mode = netlink.XFRM_MODE_TRANSPORT
	}
	outTmpl := netlink.XfrmPolicyTmpl{
		Src:   sa.Local,
		Dst:   sa.Remote,
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  mode,
	}
	inTmpl := netlink.XfrmPolicyTmpl{
		Src:   sa.Remote,
		Dst:   sa.Local,
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  mode,
	}
	out := netlink.XfrmPolicy{
		Src:      localNet,
		Dst:      remoteNet,
		Dir:      netlink.XFRM_DIR_OUT,
		Priority: 1795,
		Tmpls:    []netlink.XfrmPolicyTmpl{outTmpl},
	}
	in := netlink.XfrmPolicy{
		Src:      remoteNet,
		Dst:      localNet,
		Dir:      netlink.XFRM_DIR_IN,
		Priority: 1795,
		Tmpls:    []netlink.XfrmPolicyTmpl{inTmpl},
	}
	fwd := netlink.XfrmPolicy{
		Src:      remoteNet,
		Dst:      localNet,
		Dir:      netlink.XFRM_DIR_FWD,
		Priority: 1795,
		Tmpls:    []netlink.XfrmPolicyTmpl{inTmpl},
	}
	return []netlink.XfrmPolicy{out, in, fwd}
}

func installPolicies(sa *SaParams, log *logrus.Logger) error {
	if sa.Direction != "out" {
		// policies are installed once, with the outbound state
		return nil
	}
	for _, pol := range policies(sa) {
		pol := pol
		log.Debugf("xfrm policy add %s->%s dir %d", pol.Src, pol.Dst, pol.Dir)
		if err := netlink.XfrmPolicyAdd(&pol); err != nil {
			return errors.Wrap(err, "xfrm policy add")
		}
	}
	return nil
}
