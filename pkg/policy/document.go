package policy

import (
	"github.com/unitflow/unitflow/pkg/engine"
)

// BuildPlanDocument projects an execution plan into the document shape that
// policies evaluate. Registry metadata fills in category, tags, timeout, and
// retry budget per unit.
func BuildPlanDocument(plan *engine.ExecutionPlan, registry *engine.Registry) *PlanDocument {
	doc := &PlanDocument{
		ID:          plan.ID,
		Primary:     plan.Requested.Primary,
		Requested:   append([]string{plan.Requested.Primary}, plan.Requested.Secondary...),
		ClosureSize: len(plan.Closure),
		LayerCount:  len(plan.Layers),
	}

	for layerIdx, layer := range plan.Layers {
		if len(layer) > doc.MaxLayerWidth {
			doc.MaxLayerWidth = len(layer)
		}
		for _, id := range layer {
			unit := UnitDocument{
				ID:           id,
				Layer:        layerIdx,
				Dependencies: plan.Dependencies[id],
			}
			if def := registry.Get(id); def != nil {
				unit.Category = def.Category
				unit.Tags = def.Tags
				unit.TimeoutMS = def.Timeout.Milliseconds()
				unit.MaxRetries = def.MaxRetries
			}
			doc.Units = append(doc.Units, unit)
		}
	}

	return doc
}
