package types

// ActionType classifies what a parsed action does to the managed workspace.
type ActionType string

const (
	ActionTypeContext    ActionType = "context"
	ActionTypeEdit       ActionType = "edit"
	ActionTypeObject     ActionType = "object"
	ActionTypeAsset      ActionType = "asset"
	ActionTypePlanning   ActionType = "planning"
	ActionTypeCompletion ActionType = "completion"
)

// Action is one schema-valid operation extracted from model output.
// Exactly one action is accepted per model turn.
type Action struct {
	Name     string                 `json:"name"`
	Type     ActionType             `json:"type"`
	Params   map[string]interface{} `json:"params"`
	Raw      string                 `json:"raw,omitempty"`
	Fallback bool                   `json:"fallback,omitempty"`
}

// IsReadOnly reports whether executing the action cannot mutate the
// managed workspace.
func (a Action) IsReadOnly() bool {
	return a.Type == ActionTypeContext
}

// Message is one role-tagged entry in a conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
