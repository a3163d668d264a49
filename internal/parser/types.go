package parser

// ActionRequest is the body of a submit-action call. Shoot is kept as a raw
// string so that null, "" and an absent field all mean "no shot".
type ActionRequest struct {
	Move      string  `json:"move"`
	Shoot     *string `json:"shoot"`
	Reasoning string  `json:"reasoning"`
}

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// VerifyRequest names the agent to verify, either by id or by token.
type VerifyRequest struct {
	AgentID string `json:"agentId"`
	Token   string `json:"token"`
}
