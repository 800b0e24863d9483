package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilhermesalviano/bbcat/internal/client"
	"github.com/guilhermesalviano/bbcat/internal/signaling"
)

func roomCommand(opts *globalOptions) *cobra.Command {
	room := &cobra.Command{
		Use:   "room",
		Short: "Signaling room tools",
	}
	room.AddCommand(roomWatchCommand(opts))
	return room
}

func roomWatchCommand(opts *globalOptions) *cobra.Command {
	var (
		userID  string
		msgpack bool
	)
	cmd := &cobra.Command{
		Use:   "watch ROOM",
		Short: "Join a room and print every signaling event until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if userID == "" {
				host, _ := os.Hostname()
				userID = "bbcatctl@" + host
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("watching room "+args[0])+mutedStyle.Render(" as "+userID))
			return c.WatchRoom(cmd.Context(), client.WatchOptions{
				RoomID:  args[0],
				UserID:  userID,
				Msgpack: msgpack,
			}, func(m signaling.ServerMessage) error {
				printEvent(out, time.Now(), m)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to join with (default bbcatctl@<hostname>)")
	cmd.Flags().BoolVar(&msgpack, "msgpack", false, "use the binary msgpack subprotocol")
	return cmd
}

func printEvent(w io.Writer, at time.Time, m signaling.ServerMessage) {
	ts := mutedStyle.Render(at.Format("15:04:05"))
	switch m.Type {
	case signaling.MessageTypeWelcome:
		fmt.Fprintf(w, "%s %s connection %s\n", ts, successStyle.Render("welcome"), m.SenderID)
	case signaling.MessageTypeUserConnected:
		fmt.Fprintf(w, "%s %s %s\n", ts, successStyle.Render("+ joined"), m.UserID)
	case signaling.MessageTypeUserDisconnected:
		fmt.Fprintf(w, "%s %s %s\n", ts, mutedStyle.Render("- left"), m.UserID)
	case signaling.MessageTypeError:
		fmt.Fprintf(w, "%s %s\n", ts, errorLine(m.Code+": "+m.Message))
	default:
		fmt.Fprintf(w, "%s %s from %s (%d bytes)\n", ts, titleStyle.Render(string(m.Type)), m.SenderID, len(m.Payload))
	}
}
