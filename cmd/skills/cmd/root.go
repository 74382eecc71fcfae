package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/comfy-pilot/bridge/internal/skills"
)

var (
	registryURL string
	cacheDir    string
)

var rootCmd = &cobra.Command{
	Use:   "skills",
	Short: "Browse, install, and run ComfyUI workflow skills",
	Long: `Deploy ComfyUI workflow skills at conversation speed.

Skills are fetched from the public registry and cached locally; the
generate command runs image models on-device through mflux, and the
env commands manage the flox toolchain environment.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry",
		os.Getenv("COMFY_SKILLS_REGISTRY"), "skill registry URL (default: the public catalog)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "registry cache directory")
}

func newClient() *skills.Client {
	return skills.NewClient(skills.Options{
		RegistryURL: registryURL,
		CacheDir:    cacheDir,
	}, logging.NewNop())
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func findSkill(reg *skills.Registry, id string) (skills.Skill, error) {
	for _, s := range reg.All() {
		if s.ID == id {
			return s, nil
		}
	}
	return skills.Skill{}, fmt.Errorf("skill %q not found in registry", id)
}

// installDir is where installed skills land when no --dest is given.
func installDir(skillID string) string {
	base := cacheDir
	if base == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			base = filepath.Join(dir, "comfy-skills")
		} else {
			base = ".comfy-skills"
		}
	}
	return filepath.Join(base, "installed", skillID)
}
