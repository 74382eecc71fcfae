package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/comfy-pilot/bridge/internal/envmgr"
	"github.com/comfy-pilot/bridge/internal/logging"
)

func newEnvManager() *envmgr.Manager {
	return envmgr.New(os.Getenv("COMFY_ENV_PATH"), logging.NewNop())
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Show the flox toolchain environment status",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newEnvManager()
		st := m.Status()

		yesno := func(b bool) string {
			if b {
				return "yes"
			}
			return "no"
		}
		fmt.Printf("flox installed:  %s\n", yesno(st.Installed))
		fmt.Printf("env installed:   %s\n", yesno(st.EnvInstalled))
		active := st.ActiveEnv
		if active == "" {
			active = "none"
		}
		fmt.Printf("active env:      %s\n", active)
		fmt.Printf("env path:        %s\n", st.EnvPath)
		fmt.Printf("\nActivate:\n  %s\n", m.ActivateCommand())

		if st.EnvInstalled {
			if manifest, err := m.Manifest(); err == nil {
				fmt.Printf("\nManifest packages: %d\n", len(manifest.Install))
			}
		}
		return nil
	},
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List packages installed in the environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		pkgs := newEnvManager().ListPackages(ctx)
		if len(pkgs) == 0 {
			fmt.Println("No packages found (is the environment installed?)")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPKG-PATH\tVERSION")
		for _, p := range pkgs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.PkgPath, p.Version)
		}
		return w.Flush()
	},
}

var envInstallCmd = &cobra.Command{
	Use:   "install <package>...",
	Short: "Install packages into the environment",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		m := newEnvManager()
		if !m.Available() {
			return fmt.Errorf("flox is not on PATH; see https://flox.dev/docs/install")
		}
		if err := m.Install(ctx, args...); err != nil {
			return err
		}
		fmt.Printf("Installed %d package(s) into %s\n", len(args), m.EnvPath)
		return nil
	},
}

var floxRunCmd = &cobra.Command{
	Use:   "flox-run <command>...",
	Short: "Run a command inside the toolchain environment",
	Long: `Run a command inside the flox toolchain environment.

Example: skills flox-run guile -c '(display "hello")'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newEnvManager()
		if !m.Available() {
			return fmt.Errorf("flox is not on PATH; see https://flox.dev/docs/install")
		}

		argv := m.RunArgs(args...)
		run := exec.Command(argv[0], argv[1:]...)
		run.Stdin = os.Stdin
		run.Stdout = os.Stdout
		run.Stderr = os.Stderr
		return run.Run()
	},
}

func init() {
	envCmd.AddCommand(envListCmd)
	envCmd.AddCommand(envInstallCmd)

	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(floxRunCmd)
}
