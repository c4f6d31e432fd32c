package simulator

import (
	"workflow-studio/api/services/catalog"
	"workflow-studio/api/services/workflow"
)

// applyTransform combines a node's synthesized mock output with its input
// according to the node type's category.
//
// Triggers originate data, so the mock replaces the input outright. The
// action-like categories (action, integration, communication, database) are
// enrichment steps: the mock's fields are shallow-merged onto each input
// item, one output item per input item. The built-in "set" node and the
// ai/custom categories replace the input when their schema produced fields
// and pass it through otherwise; other data nodes merge like actions. Logic
// nodes route without transforming. Unrecognized categories merge like
// actions.
func applyTransform(cat catalog.Category, nodeType string, input, mock []Item, hasMock bool) []Item {
	switch cat {
	case catalog.CategoryTrigger:
		return cloneItems(mock)
	case catalog.CategoryLogic:
		return cloneItems(input)
	case catalog.CategoryData:
		if nodeType == "set" {
			if hasMock {
				return cloneItems(mock)
			}
			return cloneItems(input)
		}
		return mergeItems(input, mock, hasMock)
	case catalog.CategoryAI, catalog.CategoryCustom:
		if hasMock {
			return cloneItems(mock)
		}
		return cloneItems(input)
	default:
		// action, integration, communication, database, and anything else
		return mergeItems(input, mock, hasMock)
	}
}

// mergeItems overlays the first mock item's fields onto each input item. A
// non-empty mock over zero input items yields the mock items standing alone;
// no mock at all passes the input through unchanged.
func mergeItems(input, mock []Item, hasMock bool) []Item {
	if !hasMock || len(mock) == 0 {
		return cloneItems(input)
	}
	if len(input) == 0 {
		return cloneItems(mock)
	}
	fields := mock[0]
	out := make([]Item, len(input))
	for i, item := range input {
		merged := Item(workflow.CloneValueMap(map[string]any(item)))
		if merged == nil {
			merged = Item{}
		}
		for k, v := range fields {
			merged[k] = workflow.CloneValue(v)
		}
		out[i] = merged
	}
	return out
}

// routeOutput places a node's output by output port. Logic nodes route: the
// passthrough batch is replicated at every port with at least one outgoing
// edge, since conditions cannot be evaluated against mock data. Every other
// category emits on port 0; edges reading an unfed port receive an empty
// batch.
func routeOutput(cat catalog.Category, output []Item, outgoing []workflow.Edge) map[int][]Item {
	byIndex := make(map[int][]Item)
	if cat == catalog.CategoryLogic && len(outgoing) > 0 {
		for _, e := range outgoing {
			byIndex[e.OutputIndex()] = output
		}
		return byIndex
	}
	byIndex[0] = output
	return byIndex
}
