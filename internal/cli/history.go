package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/alanmeadows/interviewpro/internal/config"
	"github.com/alanmeadows/interviewpro/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved interview transcripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		exports, err := store.ListExports(config.ExpandHome(appConfig.Export.Dir))
		if err != nil {
			return err
		}
		if len(exports) == 0 {
			fmt.Fprintln(w, "No saved transcripts.")
			return nil
		}

		headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cellStyle := lipgloss.NewStyle().Padding(0, 1)

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
			Headers("Saved", "Language", "Model", "Turns", "File").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})

		for _, e := range exports {
			saved := "-"
			if !e.ExportedAt.IsZero() {
				saved = e.ExportedAt.Local().Format("2006-01-02 15:04")
			}
			t = t.Row(saved, e.Language, e.Model, fmt.Sprint(e.Turns), e.Path)
		}

		fmt.Fprintln(w, t.String())
		return nil
	},
}
