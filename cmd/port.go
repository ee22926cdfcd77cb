package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"scribble/internal/color"
	"scribble/pkg/netutil"
)

func newPortCmd() *cobra.Command {
	var (
		host    string
		timeout time.Duration
		free    bool
	)
	cmd := &cobra.Command{
		Use:   "port [number]",
		Short: "Check a local port or find a free one",
		Long: `Without arguments, prints a free local port. With a port number, reports
whether the port is available on this machine, or with --host whether it
accepts connections on the given host. Exits non-zero when it does not.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 || free {
				n, err := netutil.FindAvailablePort()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, n)
				return nil
			}

			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[0], err)
			}

			if host != "" {
				remote := netutil.RemotePort(host, n)
				if !remote.IsReachable(timeout) {
					return fmt.Errorf("%s is not reachable", remote)
				}
				fmt.Fprintln(out, color.SuccessStyle.Render(remote.String()+" is reachable"))
				return nil
			}

			local := netutil.Port(n)
			if !local.IsAvailable() {
				return fmt.Errorf("%s is in use", local)
			}
			fmt.Fprintln(out, color.SuccessStyle.Render(local.String()+" is available"))
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Check whether the port accepts connections on this host")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "Connect timeout used with --host")
	cmd.Flags().BoolVar(&free, "free", false, "Print a free local port and ignore the argument")
	return cmd
}
