package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"go.aimuz.me/glance/internal/types"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the state of a running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		base, err := bridgeAddr()
		if err != nil {
			return err
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + base + "/state")
		if err != nil {
			return fmt.Errorf("fetch state: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch state: %s", resp.Status)
		}
		_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
		return err
	},
}

var sendTool string

var sendCmd = &cobra.Command{
	Use:   "send <command> [x y]",
	Short: "Send a command (start, stop, undo, redo, clear, stroke_*) to a running daemon",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := types.Command{Type: args[0], Tool: sendTool}
		if len(args) == 3 {
			var err error
			if c.X, err = strconv.ParseFloat(args[1], 64); err != nil {
				return fmt.Errorf("x: %w", err)
			}
			if c.Y, err = strconv.ParseFloat(args[2], 64); err != nil {
				return fmt.Errorf("y: %w", err)
			}
		}
		base, err := bridgeAddr()
		if err != nil {
			return err
		}
		res, err := sendCommand("ws://"+base+"/ws", c)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("%s: %s", res.For, res.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTool, "tool", "", "drawing tool for stroke_begin")
}

func bridgeAddr() (string, error) {
	if addr != "" {
		return addr, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Addr(), nil
}

// sendCommand writes one command and waits for its result, skipping the
// state pushes in between.
func sendCommand(url string, c types.Command) (types.CommandResult, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return types.CommandResult{}, fmt.Errorf("connect %s: %w", url, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(c); err != nil {
		return types.CommandResult{}, fmt.Errorf("send: %w", err)
	}
	// Start waits for the connection, so allow for the dial timeout.
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return types.CommandResult{}, fmt.Errorf("read: %w", err)
		}
		var res types.CommandResult
		if err := json.Unmarshal(data, &res); err != nil {
			fmt.Fprintln(os.Stderr, "skipping malformed message:", err)
			continue
		}
		if res.Type == "result" && res.For == c.Type {
			return res, nil
		}
	}
}
