package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/deploymenttheory/go-docdat/internal/common/fsutil"
	"github.com/deploymenttheory/go-docdat/internal/docdat"
	"github.com/deploymenttheory/go-docdat/internal/logger"
	"github.com/spf13/cobra"
)

// extractCmd recovers page images from a DOCUMENT.DAT
var extractCmd = &cobra.Command{
	Use:   "extract [flags] DOCUMENT.DAT",
	Short: "Extract page images from a DOCUMENT.DAT container",
	Long: `Extract parses a DOCUMENT.DAT container, verifies each block's
authentication trailer and writes the recovered page images into the
output directory as sequentially numbered PNG files.

Pages that fail validation are skipped individually; corrupt media never
prevents recovery of the remaining pages. Legacy wrapper-less image
streams are supported transparently.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := fsutil.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read container: %w", err)
		}

		result, err := docdat.Extract(data)
		if err != nil {
			return err
		}

		for _, skip := range result.Skipped {
			logger.LogWarn("Skipped page", map[string]interface{}{
				"page":   skip.Page + 1,
				"reason": skip.Reason,
			})
		}

		outDir := outputDir(cmd)
		if err := fsutil.CreateDirIfNotExists(outDir); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		for i, img := range result.Images {
			out := filepath.Join(outDir, fmt.Sprintf("DOC_%04d.png", i+1))
			if err := fsutil.WriteFile(out, img, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
		}

		fields := map[string]interface{}{
			"images":  len(result.Images),
			"skipped": len(result.Skipped),
			"out":     outDir,
		}
		if result.Wrapped {
			fields["type"] = result.Type.String()
		}
		if len(result.Images) == 0 && len(result.Skipped) == 0 {
			logger.LogWarn("No images recovered; input is not a recognized container or image stream", fields)
			return nil
		}
		logger.LogInfo("Extraction finished", fields)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
