// Package op defines the typed unit of work the Stream Dispatcher
// emits from assistant events and routes to an Executor, as a
// discriminated union of Ops.
package op

// Kind discriminates the Op union.
type Kind int

const (
	KindAddContent Kind = iota
	KindToolStart
	KindToolResult
	KindTaskList
	KindPlanApproval
	KindQuestion
	KindPermission
	KindMessageApproval
	KindSessionStarted
	KindSubagentStart
	KindSubagentUpdate
	KindTurnEnd
)

// TaskStatus is the lifecycle state of one TodoWrite task item.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// TaskItem mirrors one entry of a TodoWrite tool call's input.
type TaskItem struct {
	Content    string     `json:"content"`
	ActiveForm string     `json:"active_form,omitempty"`
	Status     TaskStatus `json:"status"`
}

// TaskListAction selects which mutation a KindTaskList Op performs.
type TaskListAction int

const (
	TaskListUpdate TaskListAction = iota
	TaskListComplete
	TaskListBumpToBottom
	TaskListToggleMinimize
)

// Op is the typed payload the dispatcher hands to an executor. Only
// the fields relevant to Kind are populated; the rest are zero.
type Op struct {
	Kind Kind

	// AddContent
	Text string

	// ToolStart / ToolResult
	ToolUseID      string
	ToolName       string
	ToolDisplay    string
	ToolResultBody string
	ToolIsError    bool

	// TaskList
	TaskAction TaskListAction
	Tasks      []TaskItem

	// PlanApproval
	Plan string

	// Question
	Question string
	Options  []string

	// MessageApproval
	FromUser string

	// Permission
	PermissionToolName string
	PermissionInput    string

	// SessionStarted
	AssistantSessionID string

	// Subagent
	SubagentID   string
	SubagentName string
}
