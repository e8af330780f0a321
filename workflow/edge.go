package workflow

// Edge represents a directed dependency edge in the workflow graph.
// From must complete before To may start.
type Edge struct {
	// From is the prerequisite node ID.
	From string `json:"from"`
	// To is the dependent node ID.
	To string `json:"to"`
}
