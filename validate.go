package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevemurr/stac-server/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check item and collection documents against the STAC schemas",
	Long: `Validate checks Item, Collection and FeatureCollection documents
offline. It exits non-zero if any document is invalid.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bad := 0
		for _, path := range args {
			bad += validateFile(cmd.OutOrStdout(), path)
		}
		if bad > 0 {
			return fmt.Errorf("%d invalid document(s)", bad)
		}
		return nil
	},
}

// validateFile reports each document of path to w and returns the number
// of failures.
func validateFile(w io.Writer, path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", path, err)
		return 1
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		fmt.Fprintf(w, "%s: invalid JSON: %v\n", path, err)
		return 1
	}
	switch doc["type"] {
	case "FeatureCollection":
		features, _ := doc["features"].([]any)
		bad := 0
		for i, f := range features {
			fdoc, ok := f.(map[string]any)
			if !ok {
				fmt.Fprintf(w, "%s[%d]: not an object\n", path, i)
				bad++
				continue
			}
			bad += report(w, fmt.Sprintf("%s[%d]", path, i), schema.ValidateItem(fdoc))
		}
		return bad
	case "Collection":
		return report(w, path, schema.ValidateCollection(doc))
	default:
		return report(w, path, schema.ValidateItem(doc))
	}
}

func report(w io.Writer, name string, err error) int {
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", name, err)
		return 1
	}
	fmt.Fprintf(w, "%s: ok\n", name)
	return 0
}
