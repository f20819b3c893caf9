package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xprof/internal/settings"
	"github.com/maxgio92/xprof/pkg/healthcheck"
)

const (
	CmdName = "wait"

	retryInterval = 500 * time.Millisecond
)

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:               CmdName,
		Short:             fmt.Sprintf("Wait for the %s recorder to be ready", settings.CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVarP(&o.socketPath, "socket-path", "s", settings.SocketPath, fmt.Sprintf("Path to the %s socket file", settings.CmdName))
	cmd.Flags().DurationVar(&o.timeout, "timeout", time.Second*120, "Timeout")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	if err := o.InitLogger(cmd, CmdName); err != nil {
		return err
	}

	ctx := o.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	o.Logger.Info().Msg("waiting for the recorder to be ready")
	if err := healthcheck.WaitReady(ctx, o.socketPath, retryInterval); err != nil {
		return errors.Wrap(err, "recorder not ready")
	}
	o.Logger.Info().Msg("recorder is ready")

	return nil
}
