package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dupCmd = &cobra.Command{
	Use:   "dup",
	Short: "Find and manage duplicate/near-duplicate photos (§4.7)",
}

var dupFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Run the duplicate engine and print exact + perceptual groups",
	RunE:  runDupFind,
}

var dupCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Auto-select and trash every member of each group except its top-ranked keep",
	RunE:  runDupCommit,
}

func init() {
	dupFindCmd.Flags().Int("threshold", 0, "perceptual Hamming threshold override (0 = config default)")
	dupCmd.AddCommand(dupFindCmd)
	dupCmd.AddCommand(dupCommitCmd)
	rootCmd.AddCommand(dupCmd)
}

func runDupFind(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, closer, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closer()

	threshold := mustGetInt(cmd, "threshold")
	if threshold == 0 {
		threshold = a.Config.Scanner.SimilarityThreshold
	}

	groups, err := a.Dup.FindGroups(ctx, threshold)
	if err != nil {
		return fmt.Errorf("finding duplicate groups: %w", err)
	}

	for _, g := range groups {
		fmt.Printf("group %d (%s), %d members:\n", g.ID, g.Kind, len(g.Members))
		for i, m := range g.Members {
			tag := ""
			if i == 0 {
				tag = " [keep]"
			}
			fmt.Printf("  %d  %.1f  %s%s\n", m.Photo.ID, m.Score, m.Photo.Path, tag)
		}
	}
	fmt.Printf("%d groups found\n", len(groups))
	return nil
}

func runDupCommit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, closer, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closer()

	threshold := a.Config.Scanner.SimilarityThreshold

	groups, err := a.Dup.FindGroups(ctx, threshold)
	if err != nil {
		return fmt.Errorf("finding duplicate groups: %w", err)
	}

	for gi := range groups {
		a.Dup.AutoSelect(gi)
	}

	trashed := 0
	for _, id := range a.Dup.MarkedPhotoIDs() {
		if err := a.Trash.Trash(ctx, id); err != nil {
			fmt.Printf("  photo %d: trash failed: %v\n", id, err)
			continue
		}
		trashed++
	}
	fmt.Printf("trashed %d photos\n", trashed)
	return nil
}
