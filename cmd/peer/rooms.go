package main

import (
	"fmt"

	"github.com/dkeye/Mesh/internal/client"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		api := client.NewAPI(cfg.ServerURL, domain.UserID(cfg.UserID))
		rooms, err := api.ListRooms(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(roomsTable(rooms))
		return nil
	},
}

var createCapacity int

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a room and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		api := client.NewAPI(cfg.ServerURL, domain.UserID(cfg.UserID))
		room, err := api.CreateRoom(cmd.Context(), args[0], createCapacity)
		if err != nil {
			return err
		}
		fmt.Println(room.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <room-id>",
	Short: "Delete a room you created",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		api := client.NewAPI(cfg.ServerURL, domain.UserID(cfg.UserID))
		return api.DeleteRoom(cmd.Context(), domain.RoomID(args[0]))
	},
}

func init() {
	createCmd.Flags().IntVar(&createCapacity, "capacity", 0, "maximum participants, server default when 0")
	rootCmd.AddCommand(roomsCmd, createCmd, deleteCmd)
}
