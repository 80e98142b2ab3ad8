package approval

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("approval not found")
	ErrInvalidState          = errors.New("approval is not pending")
	ErrDuplicateVote         = errors.New("approver has already voted on this record")
	ErrDuplicateSubmission   = errors.New("a pending approval already exists for this certificate")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrQuorumNotConfigured   = errors.New("no quorum-eligible approvers configured")
	ErrMaterializationFailed = errors.New("entity materialization failed")
	ErrLedgerWriteFailed     = errors.New("ledger write failed")
	ErrLedgerTimeout         = errors.New("ledger confirmation timed out")
	ErrAlreadyAnchored       = errors.New("certificate already anchored")
	ErrAnchorInProgress      = errors.New("anchoring already in progress")
	ErrEntityNotMaterialized = errors.New("entity not materialized; rematerialize before anchoring")
	ErrNotApprover           = errors.New("caller is not a quorum-eligible approver")
	ErrNotSubmitter          = errors.New("only the original submitter may resubmit")
	ErrSlotTaken             = errors.New("approval slot already taken; refetch the signing message")
	ErrUnsupportedEntityType = errors.New("unsupported entity type")
	ErrInvalidPendingEntity  = errors.New("pending entity data is invalid")
	ErrInvalidInput          = errors.New("invalid input")
)

// SignatureMismatchError carries both identities for operator logs. Error()
// only exposes short prefixes so it can be surfaced to callers.
type SignatureMismatchError struct {
	Recovered string
	Expected  string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch: signed by %s..., expected %s...", prefix(e.Recovered), prefix(e.Expected))
}

func (e *SignatureMismatchError) Unwrap() error { return ErrInvalidSignature }

func prefix(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
