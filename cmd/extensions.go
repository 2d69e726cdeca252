package cmd

import (
	"github.com/spf13/cobra"
)

var extensionsOpts = mirrorFlags{extensionsOnly: true}

var extensionsCmd = &cobra.Command{
	Use:   "extensions [ID...]",
	Short: "Mirrors marketplace extensions only",
	Long: `Resolves the newest release of every wanted extension compatible with the
Visual Studio Code version of the mirror, follows extension packs and
downloads one package per target platform.`,
	PreRun: bindMirrorFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMirror(cmd.Context(), args, extensionsOpts)
	},
}

func init() {
	addDestFlag(extensionsCmd.Flags())
	extensionsCmd.Flags().StringVarP(&extensionsOpts.version, "version", "e", "", "engine version: latest or X.Y.Z (default: the mirror's version)")
	addExtensionFlags(extensionsCmd.Flags(), &extensionsOpts)
	rootCmd.AddCommand(extensionsCmd)
}
