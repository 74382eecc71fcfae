package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/comfy-pilot/bridge/internal/skills"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all available skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		reg, err := newClient().Registry(ctx)
		if err != nil {
			return fmt.Errorf("fetch registry: %w", err)
		}

		all := reg.All()
		category, _ := cmd.Flags().GetString("category")
		if category != "" {
			var filtered []skills.Skill
			for _, s := range all {
				if s.Category == category {
					filtered = append(filtered, s)
				}
			}
			all = filtered
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(all)
		}

		if len(all) == 0 {
			fmt.Println("No skills found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SKILL\tVERSION\tCATEGORY\tRATING\tDOWNLOADS\tSTATUS")
		for _, s := range all {
			name := s.Name
			if s.Featured {
				name = "*" + name
			}
			rating := "-"
			if s.Rating > 0 {
				rating = fmt.Sprintf("%.1f", s.Rating)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				name, s.Version, s.Category, rating, s.Downloads, s.Status)
		}
		return w.Flush()
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search skills by name, description, or tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		reg, err := newClient().Registry(ctx)
		if err != nil {
			return fmt.Errorf("fetch registry: %w", err)
		}

		results := skills.Search(reg.All(), args[0])
		if len(results) == 0 {
			fmt.Printf("No skills matching %q\n", args[0])
			return nil
		}

		for _, s := range results {
			featured := ""
			if s.Featured {
				featured = " (featured)"
			}
			fmt.Printf("%s v%s%s\n", s.Name, s.Version, featured)
			fmt.Printf("  %s\n", s.Description)
			fmt.Printf("  category: %s | rating: %.1f | downloads: %d\n\n",
				s.Category, s.Rating, s.Downloads)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <skill-id>",
	Short: "Show detailed information about a skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		client := newClient()
		reg, err := client.Registry(ctx)
		if err != nil {
			return fmt.Errorf("fetch registry: %w", err)
		}
		skill, err := findSkill(reg, args[0])
		if err != nil {
			return err
		}

		detail, err := client.Detail(ctx, skill)
		if err != nil {
			return err
		}

		fmt.Printf("%s v%s\nby %s\n\n%s\n", skill.Name, skill.Version, skill.Author, skill.Description)
		if len(detail.Inputs) > 0 {
			fmt.Println("\nInputs:")
			printJSONBlock(detail.Inputs)
		}
		if len(detail.NodesCreated) > 0 {
			fmt.Printf("\nNodes created: %s\n", strings.Join(detail.NodesCreated, ", "))
		}
		if len(detail.Performance) > 0 {
			fmt.Println("\nPerformance:")
			printJSONBlock(detail.Performance)
		}
		if len(detail.Workflow) > 0 {
			fmt.Printf("\nBundled workflow: %d bytes\n", len(detail.Workflow))
		}
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install <skill-id>",
	Short: "Download and install a skill locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		client := newClient()
		reg, err := client.Registry(ctx)
		if err != nil {
			return fmt.Errorf("fetch registry: %w", err)
		}
		skill, err := findSkill(reg, args[0])
		if err != nil {
			return err
		}

		dest, _ := cmd.Flags().GetString("dest")
		if dest == "" {
			dest = installDir(skill.ID)
		}

		if err := client.Download(ctx, skill, dest); err != nil {
			return fmt.Errorf("install %s: %w", skill.ID, err)
		}

		fmt.Printf("Installed %s v%s to %s\n", skill.Name, skill.Version, dest)
		if _, err := os.Stat(filepath.Join(dest, "workflow.json")); err == nil {
			fmt.Printf("\nDeploy it: load %s in the graph editor\n", filepath.Join(dest, "workflow.json"))
		}
		return nil
	},
}

func printJSONBlock(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "  ", "  "); err != nil {
		fmt.Printf("  %s\n", raw)
		return
	}
	fmt.Printf("  %s\n", buf.String())
}

func init() {
	listCmd.Flags().StringP("category", "c", "", "filter by category")
	listCmd.Flags().BoolP("json", "j", false, "output as JSON")
	installCmd.Flags().StringP("dest", "d", "", "destination directory")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(installCmd)
}
