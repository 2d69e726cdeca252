package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"vsmirror/internal/config"
	"vsmirror/internal/local"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const idWidth = 55

var (
	compareConfig string
	compareCode   string
)

var compareCmd = &cobra.Command{
	Use:   "compare [ID...]",
	Short: "Compares the wanted extensions with those of the local Code",
	Long: `Lists the wanted extensions next to the ones installed in the local Visual
Studio Code. Exits with status 2 when an identifier differs only by case.`,
	PreRun: bindMirrorFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg := config.GetConfig()
		list := resolveExtensionList(compareConfig, cfg.DestDir)
		want, err := loadWanted(cmd.Context(), list, args, false)
		if err != nil {
			return err
		}
		return runCompare(cmd.Context(), want.all(), compareCode)
	},
}

func init() {
	addDestFlag(compareCmd.Flags())
	compareCmd.Flags().StringVarP(&compareConfig, "config", "c", "", "extension list (default <dest-dir>/files)")
	compareCmd.Flags().StringVar(&compareCode, "code", "", "path of the code launcher (default: found in PATH)")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(ctx context.Context, wanted []string, codePath string) error {
	cfg := config.GetConfig()
	logger := newLogger(cfg)

	installed, err := local.InstalledExtensions(ctx, codePath)
	if err != nil {
		return err
	}

	c := local.Compare(wanted, installed)
	if len(c.Mismatches) > 0 {
		for _, m := range c.Mismatches {
			logger.LogWarning("upper/lower case problem with %s, should be %s", m.Wanted, m.Installed)
		}
		return &ExitError{Code: 2, Err: fmt.Errorf("%d extension identifier(s) differ by case", len(c.Mismatches))}
	}

	printComparison(os.Stdout, c)
	return nil
}

func printComparison(w io.Writer, c local.Comparison) {
	wantedColor := color.New(color.FgHiYellow)
	installedColor := color.New(color.FgHiMagenta)
	bothColor := color.New(color.FgWhite)

	header := color.New(color.Bold, color.Italic, color.FgWhite).Sprint(pad("extension", idWidth)) +
		wantedColor.Sprint(center("config", 9)) +
		installedColor.Sprint(center("local", 9))
	fmt.Fprintln(w, header)

	for _, row := range c.Rows {
		rowColor := bothColor
		switch {
		case row.Wanted && !row.Installed:
			rowColor = wantedColor
		case !row.Wanted && row.Installed:
			rowColor = installedColor
		}

		fmt.Fprintf(w, "%s%s%s%s\n",
			rowColor.Sprint(hyperlink(local.MarketplaceLink(row.ID), row.ID)),
			strings.Repeat(" ", max(idWidth-len(row.ID), 0)),
			center(mark(row.Wanted), 9),
			center(mark(row.Installed), 9))
	}
}

// hyperlink wraps text in an OSC 8 terminal hyperlink.
func hyperlink(url, text string) string {
	if color.NoColor {
		return text
	}
	return "\033]8;;" + url + "\033\\" + text + "\033]8;;\033\\"
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", max(width-utf8.RuneCountInString(s), 0))
}

func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}
