package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	synet "github.com/nest/nest-simulator-sub010"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <document.yaml>",
		Short: "Build a document and show topology statistics",
		Long: `Stats builds the document and reports degree distributions per
population pair, plus the routing-table summary.

Examples:
  synetctl stats network.yaml
  synetctl stats network.yaml --top 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topN, _ := cmd.Flags().GetInt("top")

			doc, err := LoadDocument(args[0])
			if err != nil {
				return err
			}

			net, _, err := doc.Build(cmd.Context())
			if err != nil {
				return err
			}

			descriptors, err := net.Connections(cmd.Context(), synet.Filter{})
			if err != nil {
				return err
			}

			out := make(map[synet.NodeID]int)
			in := make(map[synet.NodeID]int)
			for _, d := range descriptors {
				out[d.Source]++
				in[d.Target]++
			}

			type nodeDegree struct {
				ID  synet.NodeID `json:"id"`
				Out int          `json:"out"`
				In  int          `json:"in"`
			}
			degrees := make([]nodeDegree, 0, len(out)+len(in))
			seen := make(map[synet.NodeID]struct{}, len(out))
			for id, d := range out {
				degrees = append(degrees, nodeDegree{ID: id, Out: d, In: in[id]})
				seen[id] = struct{}{}
			}
			for id, d := range in {
				if _, ok := seen[id]; !ok {
					degrees = append(degrees, nodeDegree{ID: id, In: d})
				}
			}
			sort.Slice(degrees, func(i, j int) bool {
				if degrees[i].Out != degrees[j].Out {
					return degrees[i].Out > degrees[j].Out
				}
				return degrees[i].ID < degrees[j].ID
			})
			if topN > 0 && topN < len(degrees) {
				degrees = degrees[:topN]
			}

			st := net.Stats()

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"stats":   st,
					"degrees": degrees,
				})
			}

			fmt.Printf("Topology statistics\n")
			fmt.Printf("===================\n\n")
			fmt.Printf("Connections:     %d\n", st.Connections)
			fmt.Printf("Routing entries: %d\n", st.RoutingEntries)
			fmt.Printf("Delay steps:     %d-%d\n\n", st.MinDelaySteps, st.MaxDelaySteps)

			if len(degrees) > 0 {
				fmt.Printf("%-10s %8s %8s\n", "Node", "Out", "In")
				for _, d := range degrees {
					fmt.Printf("%-10d %8d %8d\n", d.ID, d.Out, d.In)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("top", 20, "Show only the N highest-degree nodes (0 = all)")

	return cmd
}
