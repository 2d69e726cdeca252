package cmd

import (
	"errors"
	"fmt"
	"os"

	"vsmirror/internal/config"
	"vsmirror/internal/database"
	"vsmirror/internal/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:    "delete FILENAME",
	Short:  "Deletes a mirrored file and its catalogue entry",
	Args:   cobra.ExactArgs(1),
	PreRun: bindMirrorFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runDelete(args[0])
	},
}

func init() {
	addDestFlag(deleteCmd.Flags())
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(filename string) error {
	cfg := config.GetConfig()
	if cfg.DestDir == "" {
		return fmt.Errorf("a mirror directory is required (--dest-dir)")
	}

	path, err := utils.NewFileUtils().SafeJoin(cfg.DestDir, filename)
	if err != nil {
		return err
	}

	db, err := openCatalog(cfg, cfg.DestDir)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := db.GetArtifact(filename)
	if err != nil {
		return fmt.Errorf("error reading catalogue: %w", err)
	}
	if a == nil {
		return fmt.Errorf("%w: %s", database.ErrNotFound, filename)
	}

	fmt.Printf("Found file for deletion:\n")
	fmt.Printf("  File: %s\n", a.Filename)
	fmt.Printf("  Kind: %s\n", a.Kind)
	fmt.Printf("  Name: %s\n", a.Name)
	fmt.Printf("  Version: %s\n", a.Version)
	if a.Platform != "" {
		fmt.Printf("  Platform: %s\n", a.Platform)
	}
	fmt.Printf("  Size: %s\n", humanize.Bytes(uint64(a.Size)))

	if !deleteYes {
		fmt.Printf("\nContinue with deletion? (y/N): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Deletion cancelled")
			return nil
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error deleting %s: %w", path, err)
	}
	if err := db.DeleteArtifact(filename); err != nil {
		return fmt.Errorf("error deleting catalogue entry: %w", err)
	}

	fmt.Printf("Deleted %s\n", filename)
	return nil
}
