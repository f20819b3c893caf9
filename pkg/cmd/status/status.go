package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxgio92/xprof/internal/settings"
	"github.com/maxgio92/xprof/pkg/cmd/common"
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "status",
		Short:             fmt.Sprintf("Check the %s recorder status", settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Run:               o.Run,
	}

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) {
	if pid := common.DaemonPid(); pid != 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is running (PID %d)\n", settings.CmdName, pid)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is not running\n", settings.CmdName)
	}
}
