package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	synet "github.com/nest/nest-simulator-sub010"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <document.yaml>",
		Short: "Build a document and export its connections",
		Long: `Export builds the document and writes one descriptor per line,
preceded by a header naming the codec.

Output goes to stdout unless --out is given. Files ending in .zst, or any
output with --compress, are zstd-compressed.

Examples:
  synetctl export network.yaml --out edges.jsonl
  synetctl export network.yaml --out edges.jsonl.zst
  synetctl export network.yaml --source 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("out")
			compress, _ := cmd.Flags().GetBool("compress")
			source, _ := cmd.Flags().GetUint64("source")
			target, _ := cmd.Flags().GetUint64("target")
			model, _ := cmd.Flags().GetString("model")

			doc, err := LoadDocument(args[0])
			if err != nil {
				return err
			}

			net, _, err := doc.Build(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f

				if strings.HasSuffix(outPath, ".zst") {
					compress = true
				}
			}

			if compress {
				zw, err := zstd.NewWriter(w)
				if err != nil {
					return fmt.Errorf("failed to create compressor: %w", err)
				}
				defer zw.Close()
				w = zw
			}

			filter := synet.Filter{
				Source: synet.NodeID(source),
				Target: synet.NodeID(target),
				Model:  model,
			}
			if err := net.ExportConnections(cmd.Context(), w, filter); err != nil {
				return err
			}

			if outPath != "" {
				fmt.Fprintf(os.Stderr, "Wrote %s\n", outPath)
			}
			return nil
		},
	}

	cmd.Flags().String("out", "", "Output file (default stdout)")
	cmd.Flags().Bool("compress", false, "zstd-compress the output")
	cmd.Flags().Uint64("source", 0, "Only connections from this source node")
	cmd.Flags().Uint64("target", 0, "Only connections to this target node")
	cmd.Flags().String("model", "", "Only connections of this synapse model")

	return cmd
}
