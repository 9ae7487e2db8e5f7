package slack

// ResourceIssue holds the data needed to build a resource-guard critical
// notification.
type ResourceIssue struct {
	Code      string // VAI-SYS-001, VAI-SYS-002, ...
	Component string // disk, memory
	Message   string
	FreePct   float64
}
