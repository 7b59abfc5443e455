package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/softbus"
	softhttp "github.com/aretw0/softbus/pkg/adapters/http"
	"github.com/aretw0/softbus/pkg/dispatcher"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Round-trip a session through a running daemon",
	Long: `Registers a session server, opens a session to the given peer, waits for
the channel to bind, sends one payload and tears everything down again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		pkgName, _ := cmd.Flags().GetString("pkg")
		sessionName, _ := cmd.Flags().GetString("session")
		peerSession, _ := cmd.Flags().GetString("peer-session")
		peerDevice, _ := cmd.Flags().GetString("peer-device")
		payload, _ := cmd.Flags().GetString("payload")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		out := cmd.OutOrStdout()
		p := newPalette(out)
		step := func(name string, err error) error {
			if err != nil {
				fmt.Fprintf(out, "%s %s: %v\n", p.bad("FAIL"), name, err)
				return err
			}
			fmt.Fprintf(out, "%s %s\n", p.ok(" OK "), name)
			return nil
		}

		rc := softhttp.Dial(cfg.Listen.Network, cfg.Listen.Address, softhttp.WithClientLogger(logger))
		if err := step("health", rc.Health(ctx)); err != nil {
			return err
		}

		client := softbus.NewClient(dispatcher.NewStub(rc),
			softbus.WithLogger(logger),
			softbus.WithOpenSyncPolicy(cfg.OpenSync.PollInterval, cfg.OpenSync.MaxAttempts),
		)
		defer client.Close(context.Background())

		received := make(chan []byte, 1)
		listener := domain.ListenerFuncs{
			Opened: func(int, error) error { return nil },
			Closed: func(int) {},
			Bytes: func(_ int, data []byte) {
				select {
				case received <- data:
				default:
				}
			},
			Messages: func(int, []byte) {},
		}
		if err := step("create session server", client.CreateSessionServer(ctx, pkgName, sessionName, listener)); err != nil {
			return err
		}

		events, err := rc.Events(ctx, sessionName)
		if err := step("subscribe "+sessionName, err); err != nil {
			return err
		}
		go func() {
			for ev := range events {
				if err := client.Deliver(ctx, ev); err != nil {
					logger.Debug("event not delivered", "type", string(ev.Type), "err", err)
				}
			}
		}()

		start := time.Now()
		id, err := client.OpenSessionSync(ctx, domain.OpenRequest{
			SessionName:     sessionName,
			PeerSessionName: peerSession,
			PeerDeviceID:    peerDevice,
			Attr:            domain.SessionAttribute{DataType: domain.TypeBytes},
		})
		if err := step("open session", err); err != nil {
			return err
		}
		ch, state, err := client.Registry().GetChannelBySessionID(id)
		if err := step(fmt.Sprintf("session %d %s on %s %s", id, state, ch.Key(), p.dim(time.Since(start).Round(time.Millisecond).String())), err); err != nil {
			return err
		}
		if state != domain.StateBound {
			return step("bind", fmt.Errorf("session %d still %s after %s", id, state, client.OpenSyncTimeout()))
		}

		if payload != "" {
			if err := step("send", client.SendBytes(ctx, id, []byte(payload))); err != nil {
				return err
			}
			select {
			case data := <-received:
				_ = step(fmt.Sprintf("echo %q", data), nil)
			case <-ctx.Done():
				return step("echo", ctx.Err())
			}
		}

		client.CloseSession(ctx, id)
		return step("remove session server", client.RemoveSessionServer(ctx, pkgName, sessionName))
	},
}

func init() {
	probeCmd.Flags().String("pkg", "com.softbus.probe", "Package name to register under")
	probeCmd.Flags().String("session", "com.softbus.probe.session", "Local session name")
	probeCmd.Flags().String("peer-session", "com.softbus.probe.peer", "Peer session name")
	probeCmd.Flags().String("peer-device", "local", "Peer device id")
	probeCmd.Flags().String("payload", "ping", "Bytes to send once bound; empty to skip")
	probeCmd.Flags().Duration("timeout", 30*time.Second, "Overall deadline")
	rootCmd.AddCommand(probeCmd)
}
