package quotation

import "errors"

var (
	// ErrNotFound indicates the quotation does not exist or was soft-deleted.
	ErrNotFound = errors.New("quotation not found")
	// ErrInvalidTransition indicates a status change outside the transition
	// table. Wrapped messages carry the current and attempted status.
	ErrInvalidTransition = errors.New("illegal status transition")
	// ErrNotEditable indicates a line mutation on a non-DRAFT quotation.
	ErrNotEditable = errors.New("only draft quotations can be edited")
	// ErrNoLineItems indicates a submit without any line items.
	ErrNoLineItems = errors.New("quotation requires at least one line item")
	// ErrInvalidLine indicates a line item failing validation.
	ErrInvalidLine = errors.New("invalid quotation line")
	// ErrVersionNotAllowed indicates a new-version request from a status
	// outside APPROVED/REJECTED/SENT/ACCEPTED.
	ErrVersionNotAllowed = errors.New("new version not allowed from this status")
	// ErrNotLatestVersion indicates a new-version request from a row that is
	// no longer the head of its project's version chain.
	ErrNotLatestVersion = errors.New("quotation is not the latest version")
	// ErrNotDeletable indicates a delete of a non-DRAFT quotation.
	ErrNotDeletable = errors.New("only draft quotations can be deleted")
	// ErrDocumentNotAvailable indicates document rendering for a DRAFT row.
	ErrDocumentNotAvailable = errors.New("documents are available once the quotation leaves draft")
	// ErrReasonRequired indicates a rejection without a reason.
	ErrReasonRequired = errors.New("rejection reason required")
	// ErrProjectNotFound indicates the referenced project does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrProductNotFound indicates a line references a product that is
	// missing from the catalog or deactivated.
	ErrProductNotFound = errors.New("product not found")
)
