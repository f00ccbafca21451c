// Package cmd implements the hipvpls operator CLI, grounded on
// Snider-Mining's cmd/mining/cmd layout: a rootCmd carrying persistent
// flags plus a single subcommand that does the real work.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	hiKeyPath       string
	peerTablePath   string
	bridgeDevPath   string
	backboneNetwork string
	backboneAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "hipvpls",
	Short: "HIP-based virtual private LAN service router",
	Long: `hipvpls bridges Ethernet frames between a local segment and a set of
peers over a Host Identity Protocol base exchange, authenticating every
frame in transit with AH.`,
}

// Execute runs the root command; init has already attached its child
// commands and flags. Called by main.main(); only needs to happen once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hiKeyPath, "hi", "/etc/hipvpls/hi.pem", "path to this router's Host Identity private key (PEM)")
	rootCmd.PersistentFlags().StringVar(&peerTablePath, "peers", "/etc/hipvpls/peers.yaml", "path to the static peer table")
	rootCmd.PersistentFlags().StringVar(&bridgeDevPath, "bridge-iface", "/dev/net/tun", "device node for the local Ethernet bridge")
	rootCmd.PersistentFlags().StringVar(&backboneNetwork, "backbone-network", "ip4", "IP family for the backbone sockets (ip4 or ip6)")
	rootCmd.PersistentFlags().StringVar(&backboneAddr, "backbone-addr", "0.0.0.0", "local address to bind the HIP/AH backbone sockets to")
	rootCmd.AddCommand(runCmd)
}
