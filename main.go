package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"wake-agent/internal/channel"
	"wake-agent/internal/config"
	"wake-agent/internal/display"
	"wake-agent/internal/logging"
	"wake-agent/internal/mqtt"
	"wake-agent/internal/wake"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const triggerTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "wake-agent",
		Short:        "Wakes the display and brings the main screen forward on request",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to userConfig.json or userConfig.toml")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the agent (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runAgent(configPath)
			},
		},
		newTriggerCmd(&configPath),
		newCapabilityCmd(&configPath),
	)
	return root
}

func newTriggerCmd(configPath *string) *cobra.Command {
	var via string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running agent to wake the display",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadQuiet(*configPath); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), triggerTimeout)
			defer cancel()

			var (
				res channel.Result
				err error
			)
			switch via {
			case "mqtt":
				res, err = triggerMQTT(ctx)
			case "http":
				res, err = triggerHTTP(ctx)
			default:
				return fmt.Errorf("unknown transport %q (want mqtt or http)", via)
			}
			if err != nil {
				return err
			}

			out, _ := json.MarshalIndent(res, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			switch {
			case res.NotImplemented:
				return fmt.Errorf("%s not implemented by agent", wake.MethodWakeUpApp)
			case res.Error != nil:
				return fmt.Errorf("%s: %s", res.Error.Code, res.Error.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&via, "via", "mqtt", "transport to use: mqtt or http")
	return cmd
}

func newCapabilityCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "capability",
		Short: "Print the lock-screen bypass strategy the agent would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadQuiet(*configPath); err != nil {
				return err
			}
			c, err := resolveCapability()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "detected: %s\n", display.Detect())
			fmt.Fprintf(cmd.OutOrStdout(), "effective: %s\n", c)
			return nil
		},
	}
}

// loadQuiet loads config for one-shot commands, keeping output to warnings.
func loadQuiet(path string) error {
	if err := config.LoadUserConfig(path); err != nil {
		return err
	}
	return logging.Init("warn", "", config.LogFormat)
}

func triggerMQTT(ctx context.Context) (channel.Result, error) {
	client := mqtt.NewCaller()
	if err := client.Connect(); err != nil {
		return channel.Result{}, fmt.Errorf("connect to broker: %w", err)
	}
	defer client.Disconnect(250)
	return client.Call(ctx, channel.WakeApp, wake.MethodWakeUpApp)
}

func triggerHTTP(ctx context.Context) (channel.Result, error) {
	if config.HTTPListen == "" {
		return channel.Result{}, fmt.Errorf("http.listen is not configured")
	}
	host, port, err := net.SplitHostPort(config.HTTPListen)
	if err != nil {
		return channel.Result{}, fmt.Errorf("bad http.listen %q: %w", config.HTTPListen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	body, err := json.Marshal(channel.MethodCall{Method: wake.MethodWakeUpApp})
	if err != nil {
		return channel.Result{}, err
	}
	url := fmt.Sprintf("http://%s/channels/%s", net.JoinHostPort(host, port), channel.WakeApp)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return channel.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return channel.Result{}, err
	}
	defer resp.Body.Close()

	var res channel.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return channel.Result{}, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	log.Debugf("HTTP trigger returned %s", resp.Status)
	return res, nil
}
