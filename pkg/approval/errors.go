package approval

import "errors"

var (
	// ErrRequestClosed indicates a decision targeted a request already in a
	// terminal state.
	ErrRequestClosed = errors.New("approval request is closed")

	// ErrNotApprover indicates the actor is not in the current step's
	// resolved approver set.
	ErrNotApprover = errors.New("actor is not an approver for this step")

	// ErrCommentRequired indicates the step requires a comment and none was
	// given.
	ErrCommentRequired = errors.New("a comment is required for this step")

	// ErrDelegationNotAllowed indicates the step definition forbids
	// delegation.
	ErrDelegationNotAllowed = errors.New("delegation is not allowed for this step")

	// ErrSelfDelegation indicates an approver tried to delegate to
	// themselves.
	ErrSelfDelegation = errors.New("cannot delegate to yourself")

	// ErrNoApprovers indicates a step's approver reference resolved to
	// nobody.
	ErrNoApprovers = errors.New("step resolved to no approvers")

	// ErrNoSteps indicates a stored process definition has no steps to run.
	ErrNoSteps = errors.New("approval process has no steps")

	// ErrAlreadyOpen indicates the (process, record) pair already has an
	// open request.
	ErrAlreadyOpen = errors.New("an open approval request already exists for this record")
)
