package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"vsmirror/internal/config"
	"vsmirror/internal/database"
	"vsmirror/internal/models"
	"vsmirror/internal/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	listKind   string
	listSearch string
	listPage   int
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:    "list",
	Short:  "Lists the files recorded in the mirror catalogue",
	Args:   cobra.NoArgs,
	PreRun: bindMirrorFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList()
	},
}

func init() {
	addDestFlag(listCmd.Flags())
	listCmd.Flags().StringVar(&listKind, "kind", "", "only list one kind: app or extension")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "only list names or files containing this text")
	listCmd.Flags().IntVar(&listPage, "page", utils.DefaultPage, "page of search results")
	listCmd.Flags().IntVar(&listLimit, "limit", utils.DefaultPageSize, "search results per page")
	rootCmd.AddCommand(listCmd)
}

func runList() error {
	cfg := config.GetConfig()
	if cfg.DestDir == "" && cfg.DBPath == "" {
		return fmt.Errorf("a mirror directory is required (--dest-dir)")
	}
	if listKind != "" && listKind != models.KindApp && listKind != models.KindExtension {
		return fmt.Errorf("unknown kind %q", listKind)
	}

	db, err := openCatalog(cfg, cfg.DestDir)
	if err != nil {
		return err
	}
	defer db.Close()

	var artifacts []database.ArtifactDB
	if listSearch != "" {
		var total int64
		artifacts, total, err = db.SearchArtifacts(listSearch, listKind, max(listPage, 1), max(listLimit, 1))
		if err != nil {
			return fmt.Errorf("error searching catalogue: %w", err)
		}
		fmt.Printf("%d match(es)\n", total)
	} else {
		artifacts, err = db.ListArtifacts(listKind)
		if err != nil {
			return fmt.Errorf("error listing catalogue: %w", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tVERSION\tPLATFORM\tSIZE\tMODIFIED\tFILE")
	var size int64
	for _, a := range artifacts {
		modified := "-"
		if !a.LastModified.IsZero() {
			modified = humanize.Time(a.LastModified)
		}
		platform := a.Platform
		if platform == "" {
			platform = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Kind, a.Name, a.Version, platform, humanize.Bytes(uint64(a.Size)), modified, a.Filename)
		size += a.Size
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d file(s), %s\n", len(artifacts), humanize.Bytes(uint64(size)))
	return nil
}
