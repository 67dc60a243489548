package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/deploymenttheory/go-docdat/internal/common/fsutil"
	"github.com/deploymenttheory/go-docdat/internal/config"
	"github.com/deploymenttheory/go-docdat/internal/docdat"
	"github.com/deploymenttheory/go-docdat/internal/logger"
	"github.com/spf13/cobra"
)

var (
	packType     string
	packGameID   string
	packKeyHex   string
	packKeysFile string
)

// packCmd builds a DOCUMENT.DAT from page images
var packCmd = &cobra.Command{
	Use:   "pack [flags] PAGE...",
	Short: "Build a DOCUMENT.DAT container from page images",
	Long: `Pack assembles pre-rendered page images into a DOCUMENT.DAT container.

Each argument is either an image file or a directory; directories are
walked recursively and their image files added in lexical order. PS1
documents additionally require a 16-byte version key, supplied as a hex
string (--key) or a KEYS.BIN file (--keys-file), and produce a KEYS.BIN
companion next to the container.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flags are registered before the config is loaded; config-backed
		// values are resolved here, with explicit flags taking precedence.
		typeSel := packType
		if typeSel == "" {
			typeSel = config.Instance.Docdat.Type
		}
		docType, err := parseDocType(typeSel)
		if err != nil {
			return err
		}

		gameID := packGameID
		if gameID == "" {
			gameID = config.Instance.Docdat.GameID
		}

		keysFile := packKeysFile
		if keysFile == "" {
			keysFile = config.Instance.Docdat.KeysFile
		}
		key, err := resolveVersionKey(packKeyHex, keysFile)
		if err != nil {
			return err
		}

		pages, err := collectPages(args)
		if err != nil {
			return err
		}
		if len(pages) == 0 {
			return fmt.Errorf("no page images found in the given paths")
		}

		result, err := docdat.Pack(docdat.PackOptions{
			Type:       docType,
			VersionKey: key,
			GameID:     gameID,
			Pages:      pages,
		})
		if err != nil {
			return err
		}

		if result.Truncated > 0 {
			logger.LogWarn("Page count exceeds the format's hard cap; excess pages were not written", map[string]interface{}{
				"cap":       result.PageCount,
				"truncated": result.Truncated,
			})
		}

		written, err := result.WriteFiles(outputDir(cmd), forceOverwrite(cmd))
		if err != nil {
			return err
		}

		logger.LogInfo("Container created", map[string]interface{}{
			"type":  docType.String(),
			"pages": result.PageCount,
			"files": written,
		})
		return nil
	},
}

func init() {
	packCmd.Flags().StringVarP(&packType, "type", "t", "", "Document type: ps1 or psp (defaults to the configured docdat.type)")
	packCmd.Flags().StringVar(&packGameID, "game-id", "", "Game identifier for the header (default "+docdat.DefaultGameID+")")
	packCmd.Flags().StringVar(&packKeyHex, "key", "", "Version key as 32 hex characters (PS1 only)")
	packCmd.Flags().StringVar(&packKeysFile, "keys-file", "", "Path to a 16-byte KEYS.BIN holding the version key (PS1 only, defaults to the configured docdat.keys_file)")

	rootCmd.AddCommand(packCmd)
}

// parseDocType maps the CLI type selector onto a document type.
func parseDocType(s string) (docdat.DocType, error) {
	switch s {
	case "ps1":
		return docdat.DocTypePS1, nil
	case "psp", "":
		return docdat.DocTypePSP, nil
	default:
		return 0, fmt.Errorf("unknown document type %q (expected ps1 or psp)", s)
	}
}

// resolveVersionKey loads the version key from a hex string or a key file.
// Returns nil when neither is given; Pack rejects that for PS1 documents.
func resolveVersionKey(keyHex, keysFile string) ([]byte, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid --key hex string: %w", err)
		}
		if len(key) != 16 {
			return nil, fmt.Errorf("--key must decode to 16 bytes, got %d", len(key))
		}
		return key, nil
	}

	if keysFile != "" {
		key, err := fsutil.ReadFile(keysFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read keys file: %w", err)
		}
		if len(key) != 16 {
			return nil, fmt.Errorf("keys file must be exactly 16 bytes, got %d", len(key))
		}
		return key, nil
	}

	return nil, nil
}

// collectPages reads every argument into memory: files directly,
// directories via a sorted recursive image listing.
func collectPages(args []string) ([][]byte, error) {
	var paths []string
	for _, arg := range args {
		if fsutil.DirExists(arg) {
			listed, err := fsutil.ListImageFiles(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", arg, err)
			}
			paths = append(paths, listed...)
			continue
		}
		paths = append(paths, arg)
	}

	pages := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := fsutil.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %s: %w", p, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}
