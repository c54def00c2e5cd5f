package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/roomrelay/internal/config"
	"github.com/BioHazard786/roomrelay/internal/mesh"
	"github.com/BioHazard786/roomrelay/internal/protocol"
	"github.com/BioHazard786/roomrelay/internal/roomname"
	"github.com/BioHazard786/roomrelay/internal/signaling"
	"github.com/BioHazard786/roomrelay/internal/ui"
)

var (
	flagJoinServer string
	flagJoinSTUN   string
	flagJoinCodec  string
	flagJoinNick   string
)

var joinCmd = &cobra.Command{
	Use:     "join [room-id]",
	Aliases: []string{"j"},
	Short:   "Join a room and chat with its members peer-to-peer",
	Long: `Join a room on a relay. Every member already in the room opens a WebRTC
data channel to you; messages you type go directly to them. Without a room
ID a fresh room name is generated for others to join.

Examples:
  roomrelay join
  roomrelay join lobby
  roomrelay join lobby --server wss://relay.example/ws --nick alice
  roomrelay join lobby --codec msgpack`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(config.ClientOptions{
			ConfigPath: flagConfigPath,
			ServerURL:  flagJoinServer,
			STUNServer: flagJoinSTUN,
			Codec:      flagJoinCodec,
		})
		if err != nil {
			return NewError("load config", err)
		}
		roomID, err := roomFromArgs(cmd.Context(), cfg, args)
		if err != nil {
			return err
		}
		return joinRoom(cmd.Context(), cfg, roomID, nickname())
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagJoinServer, "server", "s", "", "Relay WebSocket URL (env: RELAY_URL)")
	joinCmd.Flags().StringVar(&flagJoinSTUN, "stun", "", "STUN server URL (env: STUN_SERVER)")
	joinCmd.Flags().StringVar(&flagJoinCodec, "codec", "", "Wire codec: json or msgpack (env: RELAY_CODEC)")
	joinCmd.Flags().StringVarP(&flagJoinNick, "nick", "n", "", "Name shown to other members (default: hostname)")
}

func parseRoomID(input string) (string, error) {
	roomID := strings.TrimSpace(input)
	if roomID == "" {
		return "", NewError("parse room", ErrInvalidRoom)
	}
	return roomID, nil
}

func roomFromArgs(ctx context.Context, cfg *config.Client, args []string) (string, error) {
	if len(args) == 1 {
		return parseRoomID(args[0])
	}
	roomID, err := roomname.Generate(liveRooms(ctx, cfg))
	if err != nil {
		return "", NewError("name room", err)
	}
	fmt.Println(ui.InfoBoxStyle.Render(fmt.Sprintf("%s Starting room %s\nOthers can join with: roomrelay join %s",
		ui.IconInfo, ui.BoldStyle.Render(roomID), roomID)))
	return roomID, nil
}

// liveRooms reports names already in use on the relay. A relay that hides
// its listing or cannot be reached yields nil, which accepts any name.
func liveRooms(ctx context.Context, cfg *config.Client) func(string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rooms, err := fetchRooms(ctx, http.DefaultClient, cfg.HTTPURL("/rooms"))
	if err != nil {
		slog.Debug("room listing unavailable", "err", err)
		return nil
	}
	inUse := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		inUse[r.RoomID] = struct{}{}
	}
	return func(name string) bool {
		_, ok := inUse[name]
		return ok
	}
}

func nickname() string {
	if flagJoinNick != "" {
		return flagJoinNick
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "anonymous"
}

func joinRoom(ctx context.Context, cfg *config.Client, roomID, nick string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return NewError("select codec", err)
	}

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()

	client := signaling.NewClient(cfg.ServerURL, codec, slog.Default())
	connectCtx, connectCancel := context.WithTimeout(ctx, 15*time.Second)
	err = client.Connect(connectCtx)
	connectCancel()
	if err != nil {
		sp.Error("Could not reach the relay")
		return NewError("connect to relay", err)
	}
	defer client.Close()

	handler := signaling.NewHandler(client)
	go handler.Start()

	peers := mesh.New(client, mesh.Options{
		Nick:        nick,
		STUNServers: cfg.GetSTUNServers(),
		Logger:      slog.Default(),
	})
	defer peers.Close()

	sp.UpdateMessage(fmt.Sprintf("Joining %s...", roomID))
	if err := client.JoinRoom(roomID); err != nil {
		sp.Error("Could not join the room")
		return NewError("join room", err)
	}
	sp.Success(fmt.Sprintf("Joined %s via %s (%s)", ui.BoldStyle.Render(roomID), cfg.ServerURL, client.Codec().Name()))

	model := ui.NewChatModel(roomID, nick, peers.Broadcast)
	model.SetPending(func() int { return len(peers.Peers()) })
	program := tea.NewProgram(model, tea.WithContext(ctx))

	go func() {
		err := peers.Run(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrRelayClosed
		}
		program.Send(ui.RelayLostMsg{Err: err})
	}()
	go forwardEvents(ctx, peers.Events(), program)

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return NewError("run chat", err)
	}

	fmt.Println(ui.SessionSummaryView(roomID, model.Stats()))
	if err := model.Err(); err != nil {
		return NewError("relay connection", err)
	}
	ui.PrintSuccessf("Left %s", roomID)
	return nil
}

// forwardEvents feeds mesh events into the chat program.
func forwardEvents(ctx context.Context, events <-chan mesh.Event, program *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case mesh.EventPeerConnected:
				program.Send(ui.PeerConnectedMsg{PeerID: ev.PeerID})
			case mesh.EventPeerDisconnected:
				program.Send(ui.PeerLeftMsg{PeerID: ev.PeerID})
			case mesh.EventChat:
				program.Send(ui.IncomingChatMsg{
					PeerID: ev.PeerID,
					Nick:   ev.Chat.Nick,
					Text:   ev.Chat.Text,
					At:     time.UnixMilli(ev.Chat.SentAt),
				})
			}
		}
	}
}
