package civi

// Params is a flat parameter mapping sent to the API. Every call carries at
// least "entity" and "action"; everything else is entity-specific.
type Params map[string]any

// Result is the decoded reply of a single API call.
type Result struct {
	// IsError is 1 when the remote service reported a logical failure.
	IsError int `json:"is_error"`
	// ErrorMessage carries the remote failure description, if any.
	ErrorMessage string `json:"error_message"`
	// Count is the number of matched values.
	Count int `json:"count"`
	// Values is the ordered sequence of attribute mappings.
	Values []map[string]any `json:"values"`
}
