package assistant

import "encoding/json"

// ActionExpenseAdded marks an expense created through the tool path.
const ActionExpenseAdded = "expense_added"

// Action records one externally visible mutation performed during a turn,
// for downstream notification and client-side refresh.
type Action struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// actionTracker accumulates actions over a single turn. It is created per
// request and discarded with the outcome; nothing about it is shared.
type actionTracker struct {
	actions []Action
}

func (t *actionTracker) record(actionType string, data string) {
	t.actions = append(t.actions, Action{
		Type: actionType,
		Data: json.RawMessage(data),
	})
}

// first returns the first recorded action, or nil.
func (t *actionTracker) first() *Action {
	if len(t.actions) == 0 {
		return nil
	}
	return &t.actions[0]
}
