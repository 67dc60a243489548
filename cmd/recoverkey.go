package cmd

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/deploymenttheory/go-docdat/internal/common/fsutil"
	"github.com/deploymenttheory/go-docdat/internal/docdat"
	"github.com/deploymenttheory/go-docdat/internal/logger"
	"github.com/spf13/cobra"
)

var recoverWriteKeys bool

// recoverKeyCmd recovers the install key from a PS1 container
var recoverKeyCmd = &cobra.Command{
	Use:   "recover-key [flags] DOCUMENT.DAT",
	Short: "Recover the install key from a PS1 container",
	Long: `Recover-key reverses the BBMAC version-key embedding: given a PS1
DOCUMENT.DAT, it recomputes the base tag over the container's header block
and strips it from the stored MAC, yielding the 16-byte install key the
container was authored with.

This is the key a console needs in KEYS.BIN to accept the container; use
--write to save it alongside the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := fsutil.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read container: %w", err)
		}

		key, err := docdat.RecoverContainerInstallID(data)
		if err != nil {
			return err
		}

		fmt.Println(hex.EncodeToString(key))

		if recoverWriteKeys {
			keyPath := filepath.Join(outputDir(cmd), docdat.KeyFileName)
			if fsutil.FileExists(keyPath) && !forceOverwrite(cmd) {
				return fmt.Errorf("%w: %s", docdat.ErrOutputExists, keyPath)
			}
			if err := fsutil.WriteFile(keyPath, key, 0644); err != nil {
				return fmt.Errorf("failed to write key file: %w", err)
			}
			logger.LogInfo("Key file written", map[string]interface{}{
				"path": keyPath,
			})
		}
		return nil
	},
}

func init() {
	recoverKeyCmd.Flags().BoolVar(&recoverWriteKeys, "write", false, "Write the recovered key to KEYS.BIN in the output directory")
	rootCmd.AddCommand(recoverKeyCmd)
}
