package aggregate

import "github.com/tidwall/gjson"

// MovementSummary is the livestock movement breakdown of one entity.
type MovementSummary struct {
	EntityID string `json:"entity_id"`
	Inputs   Result `json:"inputs"`
	Outputs  Result `json:"outputs"`
}

// Movement aggregates the input and output statistics of a movement record.
func Movement(entityID string, record gjson.Result) MovementSummary {
	return MovementSummary{
		EntityID: entityID,
		Inputs:   ByCategoryResult(record.Get("inputs.statistics")),
		Outputs:  ByCategoryResult(record.Get("outputs.statistics")),
	}
}
