package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"lesson-progress-service/internal/infra/fsdoc"
	"lesson-progress-service/internal/outline"
)

// NewOutlineCmd prints the navigation outline of a lesson file.
func NewOutlineCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "outline <lesson.json>",
		Short: "Print the outline and node ids of a lesson document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := fsdoc.ReadFile(args[0])
			if err != nil {
				return err
			}
			o := outline.Build(doc)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(o.Sections())
			}
			writeOutline(cmd.OutOrStdout(), o)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outline as JSON")
	return cmd
}

func writeOutline(w io.Writer, o *outline.Outline) {
	if o.Empty() {
		fmt.Fprintln(w, "(empty lesson)")
		return
	}
	for _, section := range o.Sections() {
		fmt.Fprintf(w, "%s  %s\n", section.Anchor, section.Title)
		for _, sub := range section.Subsections {
			fmt.Fprintf(w, "  %s  %s  [%s]\n", sub.Anchor, sub.Title, sub.NodeID)
			for _, subsub := range sub.Subsubsections {
				fmt.Fprintf(w, "    %s  %s\n", subsub.Anchor, subsub.Title)
			}
		}
	}
	fmt.Fprintf(w, "%d sections, %d nodes\n", len(o.Sections()), len(o.NodeIDs()))
}
