package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Store is the slice of the data layer the executor needs. Every operation
// is scoped by the authenticated user id; the executor never reads a user id
// out of tool arguments.
type Store interface {
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	ListExpenses(ctx context.Context, userID int64, f core.ExpenseFilter) ([]core.Expense, error)
	CreateExpense(ctx context.Context, e *core.Expense) error
	SumExpenses(ctx context.Context, userID int64, dateFrom, dateTo string, categoryID *int64) (float64, int64, error)
	TopCategories(ctx context.Context, userID int64, dateFrom, dateTo string, limit int) ([]core.CategoryTotal, error)
	GetSettings(ctx context.Context, userID int64) (*core.Settings, error)
}

// Typed argument structs, one per tool. Required fields are pointers so a
// missing key is distinguishable from a zero value.
type addExpenseArgs struct {
	Amount       *float64 `json:"amount"`
	Description  *string  `json:"description"`
	CategoryName string   `json:"category_name"`
	Date         string   `json:"date"`
}

type spendingSummaryArgs struct {
	Period string `json:"period"`
}

type listExpensesArgs struct {
	Limit        *int   `json:"limit"`
	CategoryName string `json:"category_name"`
	Period       string `json:"period"`
}

type topCategoriesArgs struct {
	Period string `json:"period"`
	Limit  *int   `json:"limit"`
}

const (
	listExpensesDefaultLimit = 10
	listExpensesMaxLimit     = 20
	topCategoriesDefaultLimit = 3
	topCategoriesMaxLimit     = 10
)

// Executor runs tool invocations against one user's data.
type Executor struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

func NewExecutor(store Store, logger *log.Logger) *Executor {
	return &Executor{
		store:  store,
		logger: logger.WithComponent(log.ComponentAssistant),
		now:    time.Now,
	}
}

// Execute dispatches one tool call and returns its result as a JSON payload.
// Unknown tools and undecodable arguments yield an {"error": ...} payload;
// nothing here ever aborts the turn.
func (e *Executor) Execute(ctx context.Context, userID int64, call ToolCall) string {
	switch KindOf(call.Name) {
	case ToolAddExpense:
		var args addExpenseArgs
		if msg, ok := decodeArgs(call, &args); !ok {
			return msg
		}
		return e.addExpense(ctx, userID, args)

	case ToolGetSpendingSummary:
		var args spendingSummaryArgs
		if msg, ok := decodeArgs(call, &args); !ok {
			return msg
		}
		return e.spendingSummary(ctx, userID, args)

	case ToolListExpenses:
		var args listExpensesArgs
		if msg, ok := decodeArgs(call, &args); !ok {
			return msg
		}
		return e.listExpenses(ctx, userID, args)

	case ToolListCategories:
		return e.listCategories(ctx, userID)

	case ToolGetTopCategories:
		var args topCategoriesArgs
		if msg, ok := decodeArgs(call, &args); !ok {
			return msg
		}
		return e.topCategories(ctx, userID, args)

	default:
		return errorResult(fmt.Sprintf("Unknown tool: %s", call.Name))
	}
}

func (e *Executor) listCategories(ctx context.Context, userID int64) string {
	categories, err := e.store.ListCategories(ctx, userID)
	if err != nil {
		return e.toolFault(ctx, nameListCategories, err)
	}

	from := core.MonthStart(e.now())
	to := e.now().Format(core.DateLayout)

	result := make([]map[string]any, 0, len(categories))
	for _, c := range categories {
		spent, _, err := e.store.SumExpenses(ctx, userID, from, to, &c.ID)
		if err != nil {
			return e.toolFault(ctx, nameListCategories, err)
		}
		result = append(result, map[string]any{
			"name":             c.Name,
			"icon":             c.Icon,
			"budget":           c.Budget,
			"spent_this_month": core.Round2(spent),
		})
	}

	return toJSON(result)
}

func (e *Executor) spendingSummary(ctx context.Context, userID int64, args spendingSummaryArgs) string {
	period := args.Period
	if period == "" {
		period = string(core.PeriodMonth)
	}
	from, to := core.Period(period).Resolve(e.now())

	total, count, err := e.store.SumExpenses(ctx, userID, from, to, nil)
	if err != nil {
		return e.toolFault(ctx, nameGetSpendingSummary, err)
	}

	return toJSON(map[string]any{
		"period":       period,
		"total":        core.Round2(total),
		"transactions": count,
	})
}

func (e *Executor) listExpenses(ctx context.Context, userID int64, args listExpensesArgs) string {
	limit := listExpensesDefaultLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	if limit > listExpensesMaxLimit {
		limit = listExpensesMaxLimit
	}
	if limit < 1 {
		limit = 1
	}

	filter := core.ExpenseFilter{Limit: limit}
	if args.Period != "" {
		filter.DateFrom, filter.DateTo = core.Period(args.Period).Resolve(e.now())
	}

	categories, err := e.store.ListCategories(ctx, userID)
	if err != nil {
		return e.toolFault(ctx, nameListExpenses, err)
	}
	// Unmatched category filters are dropped, not errors.
	if args.CategoryName != "" {
		if match := matchCategory(categories, args.CategoryName); match != nil {
			filter.CategoryID = &match.ID
		}
	}

	expenses, err := e.store.ListExpenses(ctx, userID, filter)
	if err != nil {
		return e.toolFault(ctx, nameListExpenses, err)
	}

	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	result := make([]map[string]any, 0, len(expenses))
	for _, exp := range expenses {
		var category any
		if exp.CategoryID != nil {
			if name, ok := names[*exp.CategoryID]; ok {
				category = name
			}
		}
		result = append(result, map[string]any{
			"id":          exp.ID,
			"date":        exp.Date,
			"amount":      exp.Amount,
			"description": exp.Description,
			"category":    category,
		})
	}

	return toJSON(result)
}

func (e *Executor) addExpense(ctx context.Context, userID int64, args addExpenseArgs) string {
	// Non-positive amounts pass through as given; only a missing or
	// non-numeric amount is rejected.
	if args.Amount == nil || args.Description == nil {
		return errorResult("add_expense requires amount and description")
	}

	date := args.Date
	if date == "" {
		date = e.now().Format(core.DateLayout)
	}

	var categoryID *int64
	var categoryName any
	if args.CategoryName != "" {
		categories, err := e.store.ListCategories(ctx, userID)
		if err != nil {
			return e.toolFault(ctx, nameAddExpense, err)
		}
		if match := matchCategory(categories, args.CategoryName); match != nil {
			categoryID = &match.ID
			categoryName = match.Name
		}
	}

	currency := core.FallbackCurrency
	settings, err := e.store.GetSettings(ctx, userID)
	switch {
	case err == nil:
		currency = settings.Currency
	case !errors.Is(err, core.ErrNotFound):
		return e.toolFault(ctx, nameAddExpense, err)
	}

	expense := &core.Expense{
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      *args.Amount,
		Currency:    currency,
		Description: *args.Description,
		Date:        date,
	}
	if err := e.store.CreateExpense(ctx, expense); err != nil {
		return e.toolFault(ctx, nameAddExpense, err)
	}

	e.logger.Info("expense added via assistant",
		log.FieldUserID, userID,
		log.FieldExpenseID, expense.ID,
		log.FieldAmount, expense.Amount,
		log.FieldCurrency, expense.Currency,
	)

	return toJSON(map[string]any{
		"success":     true,
		"id":          expense.ID,
		"amount":      expense.Amount,
		"description": expense.Description,
		"date":        expense.Date,
		"category":    categoryName,
	})
}

func (e *Executor) topCategories(ctx context.Context, userID int64, args topCategoriesArgs) string {
	period := args.Period
	if period == "" {
		period = string(core.PeriodMonth)
	}
	limit := topCategoriesDefaultLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	if limit > topCategoriesMaxLimit {
		limit = topCategoriesMaxLimit
	}
	if limit < 1 {
		limit = 1
	}

	from, to := core.Period(period).Resolve(e.now())

	totals, err := e.store.TopCategories(ctx, userID, from, to, limit)
	if err != nil {
		return e.toolFault(ctx, nameGetTopCategories, err)
	}

	result := make([]map[string]any, 0, len(totals))
	for _, t := range totals {
		result = append(result, map[string]any{
			"category": t.Name,
			"total":    core.Round2(t.Total),
		})
	}

	return toJSON(result)
}

// matchCategory returns the first category whose name contains the query,
// case-insensitively, or nil.
func matchCategory(categories []core.Category, query string) *core.Category {
	q := strings.ToLower(query)
	for i := range categories {
		if strings.Contains(strings.ToLower(categories[i].Name), q) {
			return &categories[i]
		}
	}
	return nil
}

// decodeArgs unmarshals a tool call's arguments into its typed struct.
// On failure it returns an error payload for the model instead of failing
// the turn.
func decodeArgs(call ToolCall, dst any) (string, bool) {
	raw := call.Args
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errorResult(fmt.Sprintf("Invalid arguments for %s: %v", call.Name, err)), false
	}
	return "", true
}

// toolFault hides internal failures from the conversation: log the cause,
// hand the model a generic error payload.
func (e *Executor) toolFault(ctx context.Context, tool string, err error) string {
	e.logger.Error("tool execution failed", log.FieldTool, tool, log.FieldError, err)
	return errorResult(fmt.Sprintf("%s failed", tool))
}

func errorResult(msg string) string {
	return toJSON(map[string]string{"error": msg})
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"failed to encode result"}`
	}
	return string(b)
}
