package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-docdat/internal/config"
	"github.com/deploymenttheory/go-docdat/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Version is the release version. Overridable at build time with
// -ldflags "-X github.com/deploymenttheory/go-docdat/cmd.Version=...".
var Version = "0.1.0"

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   "go-docdat",
	Short: "A CLI tool for building and extracting DOCUMENT.DAT manuals",
	Long: `go-docdat builds and extracts the DOCUMENT.DAT digital-manual
containers consumed by PS1-on-PSP/PS3 (POPS) and PSP titles.

It packs pre-rendered page images into a container the console firmware
accepts, extracts pages from existing containers (including legacy
wrapper-less image streams), and recovers the install key embedded in a
PS1 container's BBMAC trailer.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// CLI flags can override config settings
		debug, _ := cmd.Flags().GetBool("debug")
		logFormat, _ := cmd.Flags().GetString("log-format")

		// If CLI flags were explicitly provided, update the global config
		if cmd.Flags().Changed("debug") {
			config.Instance.Debug = debug
		}

		if cmd.Flags().Changed("log-format") {
			config.Instance.LogFormat = logFormat
		}

		// If config file was explicitly specified via flag, reload: the
		// startup Initialize has already run and will not run again
		if cmd.Flags().Changed("config") && cfgFile != "" {
			// Only log an error, don't exit, as the config may still be usable
			if err := config.Reload(cfgFile); err != nil {
				logger.LogError("Error loading config file", err, map[string]interface{}{
					"config_file": cfgFile,
				})
			}
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.LogError("Command execution failed", err, nil)
		// Let Cobra handle the exit
	}
}

func init() {
	// Flag registration runs before config.Initialize populates
	// config.Instance, so no default here may be read from it. Commands
	// resolve effective values at run time via outputDir / forceOverwrite.

	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is search in standard locations)")

	// Debug flag
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	// Log format flag
	rootCmd.PersistentFlags().String("log-format", "human", "Log format: json or human")

	// Output directory flag
	rootCmd.PersistentFlags().StringP("out", "o", "", "Output directory (defaults to the configured output.dir)")

	// Overwrite flag
	rootCmd.PersistentFlags().Bool("force", false, "Overwrite existing output files")

	// Bind flags to viper settings
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("output.dir", rootCmd.PersistentFlags().Lookup("out"))
	viper.BindPFlag("output.force", rootCmd.PersistentFlags().Lookup("force"))

	// Add version command
	rootCmd.AddCommand(versionCmd)
}

// outputDir resolves the effective output directory: an explicitly set
// --out flag wins, otherwise the configured output.dir.
func outputDir(cmd *cobra.Command) string {
	if f := cmd.Flags().Lookup("out"); f != nil && f.Changed {
		return f.Value.String()
	}
	if dir := config.Instance.Output.Dir; dir != "" {
		return dir
	}
	return "."
}

// forceOverwrite resolves the effective overwrite setting the same way.
func forceOverwrite(cmd *cobra.Command) bool {
	if f := cmd.Flags().Lookup("force"); f != nil && f.Changed {
		return f.Value.String() == "true"
	}
	return config.Instance.Output.Force
}

// versionCmd shows the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("go-docdat v" + Version)
	},
}
