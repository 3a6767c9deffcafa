package sheets

import (
	"context"

	"fintrack/internal/core"
)

// ExpenseWriter appends one expense row to an external sheet backend.
// The category name is resolved by the caller; uncategorized expenses
// pass an empty string.
type ExpenseWriter interface {
	Append(ctx context.Context, e core.Expense, category string) (rowRef string, err error)
}
