package domain

// IssueKind names a class of interface health problem.
type IssueKind string

const (
	IssueConnectionLost IssueKind = "connection_lost"
	IssueBreakerOpen    IssueKind = "breaker_open"
	IssueCallbackDead   IssueKind = "callback_dead"
	IssueAuthFailed     IssueKind = "auth_failed"
)

// Issue is a de-duplicated (interface, kind) health problem. Two issues
// with the same key are the same issue.
type Issue struct {
	Interface InterfaceID
	Kind      IssueKind
}
