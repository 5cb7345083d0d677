package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanmeadows/interviewpro/internal/dashboard"
	"github.com/alanmeadows/interviewpro/internal/tunnel"
)

var (
	servePort    int
	serveHost    string
	serveOffline bool
	serveTunnel  bool
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Dashboard port (default from config or 4099)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (default from config or 127.0.0.1)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "Use the built-in scripted interviewer instead of a model service")
	serveCmd.Flags().BoolVar(&serveTunnel, "tunnel", false, "Share the dashboard through an Azure Dev Tunnel")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser interview dashboard",
	Long: `Serve the single-page interview UI. The browser talks to the server over a
WebSocket; model replies stream into every open tab as they arrive.

Clients on other hosts need the access key printed at startup. With
--tunnel the dashboard is also published through the devtunnel CLI and the
shareable URL (key included) is printed once the tunnel is up.`,
	Example: `  interviewpro serve
  interviewpro serve --port 8080 --offline
  interviewpro serve --tunnel`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *appConfig
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if serveHost != "" {
			cfg.Server.Host = serveHost
		}
		if cfg.Server.Port == 0 {
			cfg.Server.Port = 4099
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctrl, provider, err := newController(ctx, &cfg, serveOffline)
		if err != nil {
			return err
		}
		defer provider.Close()

		srv := dashboard.NewServer(ctrl, &cfg)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Interviewer Pro dashboard on http://%s:%d\n", displayHost(cfg.Server.Host), cfg.Server.Port)

		if serveTunnel {
			tm := tunnel.NewManager()
			if err := tm.Start(ctx, cfg.Server.Port); err != nil {
				return err
			}
			defer tm.Stop()
			go func() {
				u, err := tm.WaitURL(ctx, time.Minute)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "tunnel:", err)
					return
				}
				share, err := tunnel.ShareURL(u, srv.AccessKey())
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "tunnel:", err)
					return
				}
				fmt.Fprintf(out, "Shared at %s\n", share)
			}()
		}
		return srv.Start(ctx)
	},
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}
