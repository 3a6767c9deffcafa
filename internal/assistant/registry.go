package assistant

// ToolKind is the closed set of tools the model may invoke. Dispatch is by
// kind, resolved once from the tool-call name; ToolUnknown covers anything
// outside the catalog.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolAddExpense
	ToolGetSpendingSummary
	ToolListExpenses
	ToolListCategories
	ToolGetTopCategories
)

const (
	nameAddExpense         = "add_expense"
	nameGetSpendingSummary = "get_spending_summary"
	nameListExpenses       = "list_expenses"
	nameListCategories     = "list_categories"
	nameGetTopCategories   = "get_top_categories"
)

// KindOf resolves a tool name to its kind. Unrecognized names map to
// ToolUnknown, never an error.
func KindOf(name string) ToolKind {
	switch name {
	case nameAddExpense:
		return ToolAddExpense
	case nameGetSpendingSummary:
		return ToolGetSpendingSummary
	case nameListExpenses:
		return ToolListExpenses
	case nameListCategories:
		return ToolListCategories
	case nameGetTopCategories:
		return ToolGetTopCategories
	default:
		return ToolUnknown
	}
}

// registry is the immutable process-wide tool catalog, in the wire shape the
// model consumes. Built once; Registry hands out the shared slice, callers
// must not mutate it.
var registry = []ToolDefinition{
	{
		Type: "function",
		Function: FunctionDefinition{
			Name:        nameAddExpense,
			Description: "Add a new expense for the user",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount":        map[string]any{"type": "number", "description": "Amount of the expense (positive number)"},
					"description":   map[string]any{"type": "string", "description": "What was the expense for"},
					"category_name": map[string]any{"type": "string", "description": "Category name (use list_categories to get available ones)"},
					"date":          map[string]any{"type": "string", "description": "Date in YYYY-MM-DD format, defaults to today if not specified"},
				},
				"required": []string{"amount", "description"},
			},
		},
	},
	{
		Type: "function",
		Function: FunctionDefinition{
			Name:        nameGetSpendingSummary,
			Description: "Get total spending and transaction count for a given period",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"period": map[string]any{
						"type":        "string",
						"enum":        []string{"today", "yesterday", "week", "month", "year"},
						"description": "Time period",
					},
				},
				"required": []string{"period"},
			},
		},
	},
	{
		Type: "function",
		Function: FunctionDefinition{
			Name:        nameListExpenses,
			Description: "List recent expenses, optionally filtered by category",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit":         map[string]any{"type": "integer", "description": "Max number of expenses (default 10, max 20)"},
					"category_name": map[string]any{"type": "string", "description": "Filter by category name (optional)"},
					"period":        map[string]any{"type": "string", "enum": []string{"today", "week", "month"}, "description": "Filter by period (optional)"},
				},
			},
		},
	},
	{
		Type: "function",
		Function: FunctionDefinition{
			Name:        nameListCategories,
			Description: "Get all expense categories with monthly spending and budget info",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	},
	{
		Type: "function",
		Function: FunctionDefinition{
			Name:        nameGetTopCategories,
			Description: "Get top spending categories for a period",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"period": map[string]any{"type": "string", "enum": []string{"week", "month", "year"}, "description": "Time period"},
					"limit":  map[string]any{"type": "integer", "description": "Number of top categories (default 3)"},
				},
				"required": []string{"period"},
			},
		},
	},
}

// Registry returns the static tool catalog.
func Registry() []ToolDefinition {
	return registry
}
