package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/dkeye/Mesh/internal/adapters/rtc"
	"github.com/dkeye/Mesh/internal/client"
	sigclient "github.com/dkeye/Mesh/internal/client/signal"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/media"
	"github.com/dkeye/Mesh/internal/mesh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and stay until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		preset, err := media.Lookup(cfg.Quality)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		header := http.Header{}
		header.Set("X-User-ID", cfg.UserID)
		conn, err := sigclient.Dial(ctx, client.SignalURL(cfg.ServerURL), header)
		if err != nil {
			return err
		}

		factory := rtc.NewFactory(rtc.Config{
			STUN:         cfg.ICE.STUN,
			TURN:         cfg.ICE.TURN,
			TURNUsername: cfg.ICE.TURNUsername,
			TURNPassword: cfg.ICE.TURNPassword,
		})
		room := client.NewRoom(conn, factory, media.FileSource{Loop: cfg.Loop}, client.Config{
			RoomID:   domain.RoomID(args[0]),
			UserID:   domain.UserID(cfg.UserID),
			Username: cfg.Username,
			Devices:  media.Devices{Video: cfg.VideoDevice, Audio: cfg.AudioDevice},
			Preset:   preset,
		}, mesh.WithOptions(mesh.Options{OfferDelay: cfg.OfferDelay, RestartGrace: cfg.RestartGrace}))

		log.Info().Str("room", args[0]).Str("user", cfg.Username).Str("quality", preset.Name).Msg("joining")
		err = room.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		fmt.Println(statsTable(room.Sink().Snapshot()))
		return err
	},
}

func init() {
	f := joinCmd.Flags()
	f.String("quality", "", "media preset: low, medium, high or hd")
	f.String("video-device", "", "IVF file to send as the camera")
	f.String("audio-device", "", "Ogg/Opus file to send as the microphone")
	f.Bool("loop", true, "restart media files at EOF")
	f.Duration("offer-delay", 0, "delay before the initiator's first offer")
	f.Duration("restart-grace", 0, "wait after ICE failure before restarting")
	rootCmd.AddCommand(joinCmd)
}
