package cmd

import (
	"github.com/spf13/cobra"
)

var appOpts = mirrorFlags{appOnly: true}

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Mirrors the Visual Studio Code application only",
	Long: `Downloads the archives, packages, server and CLI of one Visual Studio Code
version and records them at the top of the "files" inventory.`,
	Args:   cobra.NoArgs,
	PreRun: bindMirrorFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMirror(cmd.Context(), nil, appOpts)
	},
}

func init() {
	addDestFlag(appCmd.Flags())
	appCmd.Flags().StringVarP(&appOpts.version, "version", "e", "", "Visual Studio Code version: latest or X.Y.Z")
	appCmd.Flags().StringSlice("platform", nil, "target platform used by --for-platforms (repeatable)")
	addArtifactFlags(appCmd.Flags(), &appOpts)
	rootCmd.AddCommand(appCmd)
}
