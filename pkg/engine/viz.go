package engine

import (
	"fmt"
	"strings"
)

// ToDOT generates a DOT representation of the plan's layered dependency graph
// for visualization with Graphviz tools.
func (p *ExecutionPlan) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ExecutionPlan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for layer, unitIDs := range p.Layers {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_layer_%d {\n", layer))
		sb.WriteString(fmt.Sprintf("    label=\"Layer %d\";\n", layer))
		sb.WriteString("    style=dashed;\n")
		for _, unitID := range unitIDs {
			sb.WriteString(fmt.Sprintf("    %q;\n", unitID))
		}
		sb.WriteString("  }\n\n")
	}

	for _, unitID := range p.Closure {
		for _, dep := range p.Dependencies[unitID] {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, unitID))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
