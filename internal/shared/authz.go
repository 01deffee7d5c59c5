package shared

// Permission identifiers checked by the RBAC middleware. Grouped by module;
// roles map to sets of these in the roles tables.
const (
	PermProjectView = "project.view"
	PermProjectEdit = "project.edit"

	PermQuotationView    = "quotation.view"
	PermQuotationEdit    = "quotation.edit"
	PermQuotationSubmit  = "quotation.submit"
	PermQuotationApprove = "quotation.approve"
	PermQuotationSend    = "quotation.send"
	PermQuotationAccept  = "quotation.accept"

	PermDeliveryView   = "delivery.view"
	PermDeliveryCreate = "delivery.create"
	PermDeliveryStatus = "delivery.status"

	PermPurchaseView    = "purchase.view"
	PermPurchaseEdit    = "purchase.edit"
	PermPurchaseConfirm = "purchase.confirm"

	PermPayableView = "payable.view"
	PermPayablePay  = "payable.pay"

	PermInvoiceView  = "invoice.view"
	PermInvoiceIssue = "invoice.issue"

	PermMasterdataView = "masterdata.view"
	PermMasterdataEdit = "masterdata.edit"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermAuditView = "audit.view"
)

// AllPermissions lists every permission for seeding and role editors.
func AllPermissions() []string {
	return []string{
		PermProjectView, PermProjectEdit,
		PermQuotationView, PermQuotationEdit, PermQuotationSubmit,
		PermQuotationApprove, PermQuotationSend, PermQuotationAccept,
		PermDeliveryView, PermDeliveryCreate, PermDeliveryStatus,
		PermPurchaseView, PermPurchaseEdit, PermPurchaseConfirm,
		PermPayableView, PermPayablePay,
		PermInvoiceView, PermInvoiceIssue,
		PermMasterdataView, PermMasterdataEdit,
		PermUsersView, PermUsersEdit,
		PermAuditView,
	}
}
