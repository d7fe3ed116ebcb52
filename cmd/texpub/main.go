package main

import (
	"fmt"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/eringen/texpub"
	"github.com/eringen/texpub/views"
)

// version is set at build time via ldflags.
var version = "dev"

const configFlag = "config"

var rootFlags = map[string]cobraflags.Flag{
	configFlag: &cobraflags.StringFlag{
		Name:  configFlag,
		Value: "",
		Usage: "Config file (yaml, toml or json); TEXPUB_* environment variables override it",
	},
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "texpub",
		Short: "Publish LaTeX articles as a website",
		Long: `texpub compiles LaTeX posts to HTML pages and PDFs with make4ht and
pdflatex, and serves them together with their figures.

Examples:
  texpub serve --config texpub.yaml
  texpub publish hello-world
  texpub version`,
		SilenceUsage: true,
	}
	cobraflags.RegisterMap(root, rootFlags)
	root.AddCommand(newServeCommand(), newPublishCommand(), newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the texpub version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "texpub %s\n", version)
		},
	}
}

// newApp loads configuration and builds an App with the default views.
func newApp() (*texpub.App, error) {
	cfg, err := texpub.LoadConfig(rootFlags[configFlag].GetString())
	if err != nil {
		return nil, err
	}
	return texpub.New(cfg, views.Funcs()), nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
