package schema

// DateRange bounds a goal query window. Dates are ISO 8601 (YYYY-MM-DD).
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GoalRequest is the parameter envelope accepted by the goal service.
type GoalRequest struct {
	Goal          string     `json:"goal"`
	Date          string     `json:"date,omitempty"`
	ProductID     string     `json:"product_id,omitempty"`
	DateRange     *DateRange `json:"date_range,omitempty"`
	TargetMachine string     `json:"target_machine,omitempty"`
	Quantity      int        `json:"quantity,omitempty"`
}

// Params flattens the request fields into the initial interpolation scope
// for a run. Zero-valued optional fields are omitted so queries can test
// for their presence.
func (r *GoalRequest) Params() map[string]any {
	params := make(map[string]any)
	if r.Date != "" {
		params["date"] = r.Date
	}
	if r.ProductID != "" {
		params["product_id"] = r.ProductID
	}
	if r.DateRange != nil {
		params["date_range"] = map[string]any{
			"start": r.DateRange.Start,
			"end":   r.DateRange.End,
		}
	}
	if r.TargetMachine != "" {
		params["target_machine"] = r.TargetMachine
	}
	if r.Quantity > 0 {
		params["quantity"] = r.Quantity
	}
	return params
}

// GoalResult is the response envelope: the request echoed back plus the
// value of the plan's final binding.
type GoalResult struct {
	Goal   string         `json:"goal"`
	Params map[string]any `json:"params"`
	Result any            `json:"result"`
	RunID  string         `json:"run_id"`
}
