package list

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xprof/pkg/cmd/common"
	"github.com/maxgio92/xprof/pkg/query"
)

const CmdName = "list"

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CmdName + " [image...] [tag:value...]",
		Short: "List the sample files matching a profile specification",
		Long: fmt.Sprintf(`
%s prints the sample files selected by a profile specification. Free tokens
are image or library image patterns, the other clauses are tag:value pairs
among %s.
`, CmdName, tagList()),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE:              o.Run,
	}

	cmd.Flags().StringVar(&o.samplesDir, "samples-dir", "", "Directory holding the sessions")

	return cmd
}

func tagList() string {
	return query.TagSession + ", " + query.TagSessionExclude + ", " +
		query.TagImage + ", " + query.TagImageExclude + ", " +
		query.TagLibImage + ", " + query.TagLibImageExclude + ", " +
		query.TagEvent + ", " + query.TagCount + ", " + query.TagUnitMask + ", " +
		query.TagTGID + ", " + query.TagTID + ", " + query.TagCPU + ", " +
		query.TagSampleFile + " and " + query.TagBinary
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	if err := o.InitLogger(cmd, CmdName); err != nil {
		return err
	}

	q, err := query.Parse(args)
	if err != nil {
		return err
	}
	dir := common.SamplesDir(o.samplesDir)
	o.Logger.Debug().Str("samples-dir", dir).Strs("sessions", q.Sessions()).Msg("listing sample files")

	files, err := query.List(afero.NewOsFs(), dir, q)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}

	return nil
}
