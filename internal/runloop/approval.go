package runloop

import "context"

// ApprovalRequest is surfaced to the user when the Safety Gatekeeper
// resolves a tool call to Prompt. Summary is a short human-readable
// rendering of the call (for Bash, the command line itself).
type ApprovalRequest struct {
	ToolName string
	Args     map[string]any
	Summary  string
	Risk     string
}

// ApprovalKind is the user's answer to an approval request.
type ApprovalKind string

const (
	ApprovalApprove         ApprovalKind = "approve"
	ApprovalApproveRemember ApprovalKind = "approve_and_remember"
	ApprovalDeny            ApprovalKind = "deny"
)

// ApprovalDecision is the full user response, including optional feedback
// text that rides back to the model on a denial.
type ApprovalDecision struct {
	Kind     ApprovalKind
	Feedback string
}

// Canned decisions for the common cases.
var (
	Approved            = ApprovalDecision{Kind: ApprovalApprove}
	ApprovedAndRemember = ApprovalDecision{Kind: ApprovalApproveRemember}
	Denied              = ApprovalDecision{Kind: ApprovalDeny}
)

// DeniedWithFeedback builds a denial that carries the user's feedback text
// back to the model as the tool error payload.
func DeniedWithFeedback(text string) ApprovalDecision {
	return ApprovalDecision{Kind: ApprovalDeny, Feedback: text}
}

// Approver answers approval requests. The blocking call is a suspension
// point: it must honor ctx cancellation (steering Stop trips it).
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) ApprovalDecision
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) ApprovalDecision

// Approve calls f(ctx, req).
func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) ApprovalDecision {
	return f(ctx, req)
}

// denyAll is the default approver when none is configured: every Prompt
// resolves to a denial so nothing runs without an explicit user channel.
type denyAll struct{}

func (denyAll) Approve(context.Context, ApprovalRequest) ApprovalDecision {
	return DeniedWithFeedback("no approval channel is attached to this session")
}
