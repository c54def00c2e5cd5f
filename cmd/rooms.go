package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/roomrelay/internal/config"
	"github.com/BioHazard786/roomrelay/internal/server"
	"github.com/BioHazard786/roomrelay/internal/ui"
)

var flagRoomsServer string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the live rooms on a relay",
	Long: `List the rooms a relay currently knows about with their member counts.
The relay must run with --expose-rooms.

Examples:
  roomrelay rooms
  roomrelay rooms --server wss://relay.example/ws`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(config.ClientOptions{
			ConfigPath: flagConfigPath,
			ServerURL:  flagRoomsServer,
		})
		if err != nil {
			return NewError("load config", err)
		}

		rooms, err := fetchRooms(cmd.Context(), http.DefaultClient, cfg.HTTPURL("/rooms"))
		if errors.Is(err, ErrRoomsHidden) {
			ui.PrintWarning("This relay does not list its rooms (start it with --expose-rooms)")
			return nil
		}
		if err != nil {
			return NewError("list rooms", err)
		}

		rows := make([]ui.RoomRow, len(rooms))
		for i, r := range rooms {
			rows[i] = ui.RoomRow{RoomID: r.RoomID, Members: r.Members}
		}
		fmt.Println(ui.RoomsView(rows))
		return nil
	},
}

func init() {
	roomsCmd.Flags().StringVarP(&flagRoomsServer, "server", "s", "", "Relay WebSocket URL (env: RELAY_URL)")
}

func fetchRooms(ctx context.Context, client *http.Client, url string) ([]server.RoomInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrRoomsHidden
	default:
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, resp.Status)
	}

	var body struct {
		Rooms []server.RoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return body.Rooms, nil
}
