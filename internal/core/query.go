package core

// ExpenseFilter narrows an expense listing. Zero values mean "no constraint".
type ExpenseFilter struct {
	CategoryID *int64
	DateFrom   string
	DateTo     string
	Search     string
	Limit      int
	Offset     int
}

// CategoryTotal is one row of a spending-by-category breakdown. Only
// categorized expenses appear; uncategorized spending is not a group.
type CategoryTotal struct {
	CategoryID *int64
	Name       string
	Total      float64
	Count      int64
}
