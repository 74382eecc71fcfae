package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/comfy-pilot/bridge/internal/mlx"
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Generate an image locally via mflux (Apple Silicon)",
	Long: `Generate an image with MLX on Apple Silicon through mflux.
Runs entirely on-device using Metal; no cloud API needed.

Example: skills generate "a puffin on a cliff at sunset" -m schnell -q 8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		width, _ := cmd.Flags().GetInt("width")
		height, _ := cmd.Flags().GetInt("height")
		steps, _ := cmd.Flags().GetInt("steps")
		seed, _ := cmd.Flags().GetInt64("seed")
		quantize, _ := cmd.Flags().GetInt("quantize")
		output, _ := cmd.Flags().GetString("output")

		g := mlx.New(logging.NewNop())
		out, err := g.Generate(context.Background(), mlx.GenerateConfig{
			Prompt:   args[0],
			Model:    model,
			Width:    width,
			Height:   height,
			Steps:    steps,
			Seed:     seed,
			Quantize: quantize,
			Output:   output,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Generated: %s\n", out)
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available MLX image generation models",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tDESCRIPTION")
		for _, m := range mlx.Models {
			fmt.Fprintf(w, "%s\t%s\n", m.Name, m.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Println("\nAll models run locally via mflux: uvx --from mflux mflux-generate --help")
		return nil
	},
}

func init() {
	generateCmd.Flags().StringP("model", "m", "schnell", "base model (see 'skills models')")
	generateCmd.Flags().IntP("width", "W", 1024, "image width")
	generateCmd.Flags().IntP("height", "H", 1024, "image height")
	generateCmd.Flags().IntP("steps", "s", 0, "sampling steps (0 = model default)")
	generateCmd.Flags().Int64("seed", -1, "random seed (-1 for random)")
	generateCmd.Flags().IntP("quantize", "q", 8, "quantization bits (3-8, lower = faster)")
	generateCmd.Flags().StringP("output", "o", "output.png", "output file path")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(modelsCmd)
}
