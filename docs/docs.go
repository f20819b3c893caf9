//go:build docs

package main

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/maxgio92/xprof/internal/settings"
	"github.com/maxgio92/xprof/pkg/cmd"
)

const (
	docsDir        = "docs"
	readmeTemplate = "README.md.tpl"
	readmeFile     = "README.md"

	referenceMarker = "{{ .CLI_REFERENCE }}"
	commandsMarker  = "{{ .COMMANDS }}"
)

// linkHandler points the root command page to the README, every other
// page stays under docs/.
func linkHandler(filename string) string {
	if filename == settings.CmdName+".md" {
		return readmeFile
	}

	return path.Join(docsDir, filename)
}

// commandsTable renders the available subcommands of root as a markdown
// table linking to their pages.
func commandsTable(root *cobra.Command) string {
	var sb strings.Builder
	sb.WriteString("| Command | Description |\n|---|---|\n")
	for _, c := range root.Commands() {
		if !c.IsAvailableCommand() || c.IsAdditionalHelpTopicCommand() {
			continue
		}
		page := strings.ReplaceAll(c.CommandPath(), " ", "_") + ".md"
		fmt.Fprintf(&sb, "| [`%s`](%s) | %s |\n", c.Name(), linkHandler(page), c.Short)
	}

	return sb.String()
}

func run(logger log.Logger) error {
	root := cmd.NewCommand(cmd.NewOptions(cmd.WithLogger(logger)))
	root.DisableAutoGenTag = true

	if err := doc.GenMarkdownTreeCustom(root, docsDir, func(string) string { return "" }, linkHandler); err != nil {
		return errors.Wrap(err, "error generating CLI docs")
	}

	tpl, err := os.ReadFile(readmeTemplate)
	if err != nil {
		return errors.Wrap(err, "error reading README template")
	}
	reference, err := os.ReadFile(path.Join(docsDir, settings.CmdName+".md"))
	if err != nil {
		return errors.Wrap(err, "error reading root command docs")
	}

	readme := strings.NewReplacer(
		referenceMarker, string(reference),
		commandsMarker, commandsTable(root),
	).Replace(string(tpl))

	if err := os.WriteFile(readmeFile, []byte(readme), 0o644); err != nil {
		return errors.Wrap(err, "error writing README")
	}
	logger.Info().Str("readme", readmeFile).Str("dir", docsDir).Msg("docs generated")

	return nil
}

func main() {
	logger := log.New(log.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("docs generation failed")
	}
}
