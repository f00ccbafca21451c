package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/msgboxio/log"
	"github.com/spf13/cobra"

	"github.com/hipvpls/core/hip"
	"github.com/hipvpls/core/identity"
	"github.com/hipvpls/core/protocol"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the router and block until signalled to stop",
	RunE:  runRouter,
}

func runRouter(cmd *cobra.Command, args []string) error {
	local, peers, err := loadIdentities()
	if err != nil {
		return err
	}

	bridge, err := openFileBridge(bridgeDevPath)
	if err != nil {
		return ioErr(err)
	}

	hipConn, err := hip.ListenBackbone(backboneNetwork, backboneAddr, protocol.ProtocolNumberHIP)
	if err != nil {
		bridge.Close()
		return ioErr(err)
	}
	ahConn, err := hip.ListenBackbone(backboneNetwork, backboneAddr, protocol.ProtocolNumberAH)
	if err != nil {
		bridge.Close()
		hipConn.Close()
		return ioErr(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := hip.NewRouter(ctx, hip.DefaultConfig(), local, peers, hipConn, ahConn, bridge)

	done := make(chan struct{})
	go func() {
		defer close(done)
		router.Run()
	}()

	log.Infof("hipvpls: router running, local HIT %s", local.HIT)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Infof("hipvpls: received %s, shutting down", sig)
		router.Stop()
	case <-ctx.Done():
	}
	<-done
	return nil
}

// loadIdentities reads the HI keypair and peer table, categorizing
// failures per spec.md §6/§7: a missing/unreadable file is an I/O error,
// a key that doesn't parse is a crypto-init error, and a malformed peer
// table is a config error.
func loadIdentities() (*identity.LocalIdentity, *identity.PeerTable, error) {
	keyBytes, err := os.ReadFile(hiKeyPath)
	if err != nil {
		return nil, nil, ioErr(protocol.Errf(protocol.ConfigError, "read HI key %s: %v", hiKeyPath, err))
	}
	local, err := identity.LoadLocalIdentity(keyBytes)
	if err != nil {
		return nil, nil, cryptoErr(protocol.Errf(protocol.ConfigError, "load HI key %s: %v", hiKeyPath, err))
	}

	peerBytes, err := os.ReadFile(peerTablePath)
	if err != nil {
		return nil, nil, ioErr(protocol.Errf(protocol.ConfigError, "read peer table %s: %v", peerTablePath, err))
	}
	peers, err := identity.LoadPeerTable(peerBytes)
	if err != nil {
		return nil, nil, configErr(protocol.Errf(protocol.ConfigError, "load peer table %s: %v", peerTablePath, err))
	}

	return local, peers, nil
}
