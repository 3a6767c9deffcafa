package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// ErrNotConfigured is returned before any round runs when no model provider
// credential is present.
var ErrNotConfigured = errors.New("assistant is not configured")

// maxRounds bounds the tool-call chain per turn. When the model still wants
// tools after the last round, the turn ends with fallbackReply.
const maxRounds = 5

const fallbackReply = "Sorry, I could not complete the request."

const systemPromptTemplate = `You are a smart personal finance assistant built into the FinTrack expense tracking app.
You help users manage their expenses through natural conversation.

You CAN:
- Add new expenses (use add_expense tool)
- Show spending summaries for any period (use get_spending_summary)
- List recent expenses (use list_expenses)
- Show category breakdown (use list_categories, get_top_categories)
- Answer questions about spending habits

Rules:
- Always respond in the SAME LANGUAGE the user writes in
- Be concise — short, clear answers
- When adding an expense, confirm what you added (amount, description, category, date)
- Format amounts with 2 decimal places and the appropriate currency symbol
- Today's date is {today}
- When the user asks about "today", "this week", "this month" — use the corresponding period
`

// TurnOutcome is the result of one chat turn. Actions carries everything the
// tracker recorded, for event publication; Action surfaces the first one to
// the client.
type TurnOutcome struct {
	Reply   string   `json:"reply"`
	Action  *Action  `json:"action"`
	Actions []Action `json:"-"`
}

// Assistant drives the bounded conversation loop between the client's
// message history, the model provider, and the tool executor.
type Assistant struct {
	provider ModelProvider
	executor *Executor
	logger   *log.Logger
	now      func() time.Time
}

// New builds an assistant. A nil provider means the chat feature is not
// configured; RunTurn will refuse to start.
func New(provider ModelProvider, executor *Executor, logger *log.Logger) *Assistant {
	return &Assistant{
		provider: provider,
		executor: executor,
		logger:   logger.WithComponent(log.ComponentAssistant),
		now:      time.Now,
	}
}

// Configured reports whether a model provider is wired in.
func (a *Assistant) Configured() bool {
	return a.provider != nil
}

// RunTurn executes one full chat turn for the authenticated user. The
// caller-supplied history is never mutated; each round threads a fresh
// accumulator through the loop.
func (a *Assistant) RunTurn(ctx context.Context, userID int64, history []ChatMessage) (*TurnOutcome, error) {
	if a.provider == nil {
		return nil, ErrNotConfigured
	}

	systemPrompt := strings.Replace(systemPromptTemplate, "{today}", a.now().Format(core.DateLayout), 1)

	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)

	tracker := &actionTracker{}

	for round := 1; round <= maxRounds; round++ {
		reply, err := a.provider.Complete(ctx, messages, Registry())
		if err != nil {
			return nil, fmt.Errorf("model round %d: %w", round, err)
		}

		if len(reply.ToolCalls) == 0 {
			return &TurnOutcome{
				Reply:   reply.Content,
				Action:  tracker.first(),
				Actions: tracker.actions,
			}, nil
		}

		messages = append(messages, ChatMessage{
			Role:      RoleAssistant,
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})

		// Sequential execution in request order: a later call may expect
		// an earlier write to be visible.
		for _, call := range reply.ToolCalls {
			result := a.executor.Execute(ctx, userID, call)

			messages = append(messages, ChatMessage{
				Role:       RoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})

			if KindOf(call.Name) == ToolAddExpense && !isErrorResult(result) {
				tracker.record(ActionExpenseAdded, result)
			}

			a.logger.DebugContext(ctx, "tool executed",
				log.FieldUserID, userID,
				log.FieldTool, call.Name,
				log.FieldRound, round,
			)
		}
	}

	a.logger.WarnContext(ctx, "round budget exhausted", log.FieldUserID, userID)

	return &TurnOutcome{
		Reply:   fallbackReply,
		Action:  tracker.first(),
		Actions: tracker.actions,
	}, nil
}

// isErrorResult reports whether a tool result is the structured error shape.
func isErrorResult(result string) bool {
	return strings.HasPrefix(result, `{"error":`)
}
