package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/ogier/pflag"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	ike "github.com/msgboxio/ikev1"
	"github.com/msgboxio/ikev1/platform"
	"github.com/msgboxio/ikev1/protocol"
)

type kernelCallback struct {
	log *logrus.Logger
}

func (k *kernelCallback) SendMessage(*ike.OutgoingPacket) error { return nil }

func (k *kernelCallback) AddSa(sa *ike.Sa, params *platform.SaParams) error {
	return platform.InstallChildSa(params, k.log)
}

func (k *kernelCallback) RemoveSa(sa *ike.Sa, params *platform.SaParams) error {
	return platform.RemoveChildSa(params, k.log)
}

func main() {
	var localAddr, remoteAddr, localId, peerId, psk string
	var initiate, aggressive, debug bool
	flag.StringVar(&localAddr, "local", "0.0.0.0:500", "address to bind")
	flag.StringVar(&remoteAddr, "remote", "", "peer address (initiator)")
	flag.StringVar(&localId, "localid", "", "our FQDN identity")
	flag.StringVar(&peerId, "peerid", "", "expected peer FQDN identity")
	flag.StringVar(&psk, "psk", "", "preshared key")
	flag.BoolVar(&initiate, "initiate", false, "initiate toward --remote")
	flag.BoolVar(&aggressive, "aggressive", false, "use aggressive mode")
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.Parse()

	log := logrus.New()
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}

	conn := &ike.Connection{
		Name:   "default",
		PSK:    []byte(psk),
		Auth:   ike.PolicyAuthPSK,
		Config: ike.DefaultConnConfig(),
	}
	conn.Config.Aggressive = aggressive
	conn.Config.DPDEnabled = true
	if localId != "" {
		conn.LocalId = ike.PeerId{Kind: protocol.ID_FQDN, Data: []byte(localId)}
	}
	if peerId != "" {
		conn.PeerId = ike.PeerId{Kind: protocol.ID_FQDN, Data: []byte(peerId)}
	} else {
		conn.PeerIdWildcard = true
	}
	if la, err := net.ResolveUDPAddr("udp", localAddr); err == nil {
		conn.LocalAddr = la
	}
	if remoteAddr != "" {
		ra, err := net.ResolveUDPAddr("udp", remoteAddr)
		if err != nil {
			log.Fatalf("bad remote address %q: %s", remoteAddr, err)
		}
		conn.RemoteAddr = ra
	}

	sock, err := ike.Listen("udp4", localAddr, log)
	if err != nil {
		log.Fatalf("could not listen on %s: %s", localAddr, err)
	}

	engine := ike.NewEngine(ike.EngineConfig{
		Conns:    ike.SingleConn{Conn: conn},
		Callback: &kernelCallback{log: log},
		Log:      log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if initiate {
		if conn.RemoteAddr == nil {
			log.Fatal("--initiate needs --remote")
		}
		engine.Post(func() {
			if err := engine.Initiate(conn); err != nil {
				log.Errorf("initiation failed: %s", err)
			}
		})
	}

	runErr := engine.Run(ctx, sock)
	if err := multierr.Append(ignoreCancel(runErr), sock.Close()); err != nil {
		log.Errorf("shutdown: %s", err)
		os.Exit(1)
	}
}

func ignoreCancel(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}
