package main

import (
	"github.com/dkeye/Mesh/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "mesh-peer",
	Short: "Join Mesh rooms from the command line",
	Long: `mesh-peer is a headless Mesh participant. It lists and creates rooms over
the REST API and joins a room over the signaling websocket, sending media from
IVF (VP8) and Ogg (Opus) files to every other participant.`,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "peer config file (yaml)")
	f.String("server-url", "", "server base URL, http(s) or ws(s)")
	f.String("user-id", "", "stable user id, generated when empty")
	f.String("username", "", "display name")
	f.StringSlice("ice-stun", nil, "STUN server URLs")
	f.StringSlice("ice-turn", nil, "TURN server URLs")
	f.String("ice-turn-username", "", "TURN username")
	f.String("ice-turn-password", "", "TURN password")
	f.String("log-level", "", "log level")
}

func loadConfig(cmd *cobra.Command) (*config.PeerConfig, error) {
	cfg, err := config.LoadPeer(cmd.Flags(), configFile)
	if err != nil {
		return nil, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}
