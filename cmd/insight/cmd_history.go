package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/store"
	"github.com/nhle/codeinsight/internal/theme"
)

var historyLimit int

// historyCmd lists saved conversations.
var historyCmd = &cobra.Command{
	Use:   "history [term]",
	Short: "List recent conversations, or search them",
	Long: `Lists the most recently updated conversations. With a term, searches
titles, source code, insights and messages instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	var convos []model.Conversation
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		convos, err = db.Search(ctx, args[0], historyLimit)
	} else {
		convos, err = db.List(ctx, store.ConversationFilter{Limit: historyLimit})
	}
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if len(convos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversations found.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), historyTable(convos, time.Now()))
	return nil
}

// historyTable formats convos as a bordered table.
func historyTable(convos []model.Conversation, now time.Time) string {
	rows := make([][]string, 0, len(convos))
	for _, c := range convos {
		lang := c.Language
		if lang == "" {
			lang = "-"
		}
		rows = append(rows, []string{
			shortID(c.ID),
			c.Title,
			c.Mode.Short(),
			lang,
			now.Sub(c.UpdatedAt).Round(time.Minute).String(),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.HelpStyle).
		Headers("ID", "TITLE", "MODE", "LANG", "AGE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.HeaderStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
