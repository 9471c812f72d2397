package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wfunc/gonu/network"
	gonu_rpc "github.com/wfunc/gonu/rpc"
)

const usage = `commands:
  create <map> [title]   new game on four-line, lone-well or pumpkin
  join <game>            take the second seat
  open <game>            reattach to a game you play in
  ready                  toggle ready
  place <node>
  move <from> <to>
  surrender
  leave
  quit`

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gonu-client",
		Short: "Test client for the Gonu server",
	}
	cmd.AddCommand(newPlayCommand(), newAdminCommand())
	return cmd
}

func newPlayCommand() *cobra.Command {
	var addr, user string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Connect over websocket and send commands typed on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return play(addr, user)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "server address")
	cmd.Flags().StringVar(&user, "user", "", "user id to play as (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v any) error {
	var data []byte
	if v != nil {
		var err error
		if data, err = network.Marshal(v); err != nil {
			return err
		}
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func play(addr, user string) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: url.Values{"user": {user}}.Encode()}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet: %v", err)
				continue
			}
			printPacket(packet)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	fmt.Println(usage)
	for {
		select {
		case <-done:
			return nil
		case <-heartbeat.C:
			if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
				return err
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			closeConn(c, done)
			return nil
		case line, ok := <-lines:
			if !ok {
				closeConn(c, done)
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" {
				closeConn(c, done)
				return nil
			}
			msgID, payload, err := parseCommand(fields)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := send(c, msgID, payload); err != nil {
				return err
			}
		}
	}
}

func closeConn(c *websocket.Conn, done <-chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("Write close error:", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func parseCommand(fields []string) (uint16, any, error) {
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	switch fields[0] {
	case "create":
		return network.MsgTypeCreateGame, network.CreateGameRequest{MapID: arg(1), Title: strings.Join(fields[min(2, len(fields)):], " ")}, nil
	case "join":
		return network.MsgTypeJoinGame, network.GameRequest{GameID: arg(1)}, nil
	case "open":
		return network.MsgTypeOpenGame, network.GameRequest{GameID: arg(1)}, nil
	case "ready":
		return network.MsgTypeReady, nil, nil
	case "place":
		return network.MsgTypePlace, network.PlaceRequest{Node: arg(1)}, nil
	case "move":
		return network.MsgTypeMove, network.MoveRequest{From: arg(1), To: arg(2)}, nil
	case "surrender":
		return network.MsgTypeSurrender, nil, nil
	case "leave":
		return network.MsgTypeLeaveGame, nil, nil
	}
	return 0, nil, fmt.Errorf("unknown command %q\n%s", fields[0], usage)
}

func printPacket(p *network.Packet) {
	switch p.MsgID {
	case network.MsgTypeHeartbeat:
		return
	case network.MsgTypeGameSync:
		var msg network.GameSync
		if err := network.Unmarshal(p.Data, &msg); err == nil && msg.Session != nil {
			s := msg.Session
			log.Printf("<- SYNC %s [%s/%s] v%d turn=%s black=%s white=%s board=%v",
				s.ID, s.Status, s.Phase, s.Version, s.CurrentTurn, s.Player1ID, s.Player2ID, s.Occupant)
			return
		}
	case network.MsgTypeActionResult:
		var msg network.ActionResult
		if err := network.Unmarshal(p.Data, &msg); err == nil {
			if msg.Valid {
				log.Printf("<- %s ok", msg.Action)
			} else {
				log.Printf("<- %s rejected: %s", msg.Action, msg.Reason)
			}
			return
		}
	}
	log.Printf("<- RECV (ID: %d): %s", p.MsgID, string(p.Data))
}

func newAdminCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Query the admin RPC",
	}
	cmd.PersistentFlags().StringVar(&addr, "rpc", "localhost:9090", "admin RPC address")

	withClient := func(fn func(ctx context.Context, c *gonu_rpc.AdminClient, arg string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			out, err := fn(ctx, gonu_rpc.NewAdminClient(conn), args[0])
			if err != nil {
				return err
			}
			data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "session <game>",
		Short: "Print the stored record of a game",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *gonu_rpc.AdminClient, id string) (any, error) {
			return c.GetSession(ctx, id)
		}),
	}, &cobra.Command{
		Use:   "stats <user>",
		Short: "Print a player's finished-match record",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *gonu_rpc.AdminClient, user string) (any, error) {
			return c.GetPlayerStats(ctx, user)
		}),
	})
	return cmd
}
