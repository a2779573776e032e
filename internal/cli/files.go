package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/usecase"
	"ResourceCurator/internal/validate"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Reconcile a generated resource file against the current one",
	Long: `Read the current and newly generated resource documents, carry forward
weeks_on_list for resources matched by title and source, and write the merged
document.

Example:
  curator merge --current current-resources.json --new new-resources.json --out merged-resources.json`,
	Args: cobra.NoArgs,
	RunE: runMerge,
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a resource document against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(validateCmd)

	mergeCmd.Flags().String("current", "", "current (previously published) resources file")
	mergeCmd.Flags().String("new", "", "newly generated resources file")
	mergeCmd.Flags().String("out", "", "merged output file")
	_ = mergeCmd.MarkFlagRequired("current")
	_ = mergeCmd.MarkFlagRequired("new")
	_ = mergeCmd.MarkFlagRequired("out")

	validateCmd.Flags().String("schema", "", "JSON Schema file (default: embedded schema)")
}

func runMerge(cmd *cobra.Command, _ []string) error {
	currentPath, _ := cmd.Flags().GetString("current")
	newPath, _ := cmd.Flags().GetString("new")
	outPath, _ := cmd.Flags().GetString("out")

	current, err := readDocument(currentPath)
	if err != nil {
		return err
	}
	generated, err := readDocument(newPath)
	if err != nil {
		return err
	}

	merged, stats := usecase.MergeDocuments(current, generated)
	encoded, err := domain.EncodeDocument(merged)
	if err != nil {
		return fmt.Errorf("encode merged document: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Current resources: %d\n", stats.Previous)
	fmt.Fprintf(out, "New resources: %d\n", stats.Generated)
	fmt.Fprintf(out, "Matched: %d, added: %d\n", stats.Matched, stats.New)
	fmt.Fprintf(out, "Output: %s\n", outPath)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	schemaPath, _ := cmd.Flags().GetString("schema")
	validator, err := validate.FromFile(schemaPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	result := validator.Validate(raw)
	out := cmd.OutOrStdout()
	for _, e := range result.Errors {
		fmt.Fprintf(out, "error: %s\n", e)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	if err := result.Err(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s is valid (%d warnings)\n", args[0], len(result.Warnings))
	return nil
}

func readDocument(path string) (domain.ResourceDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.ResourceDocument{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := domain.DecodeDocument(raw)
	if err != nil {
		return domain.ResourceDocument{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}
