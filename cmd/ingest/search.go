package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timmy/portdesk/internal/domain"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a similarity search against one collection",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().String("collection", domain.CollectionCaseHistory, "Collection to search")
	searchCmd.Flags().Int("top-k", 3, "Number of hits to return")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	collection, _ := cmd.Flags().GetString("collection")
	topK, _ := cmd.Flags().GetInt("top-k")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	query := strings.Join(args, " ")

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	hits, err := e.retrieval.Search(cmd.Context(), query, collection, topK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	if len(hits) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for i, h := range hits {
		fmt.Fprintf(out, "%d. [%.3f] %s (%s)\n", i+1, h.Score, h.ID, h.Source)
		fmt.Fprintf(out, "   %s\n", preview(h.Text, 160))
	}
	return nil
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
