package wallet

// Operation names reported through OperationLogger.
const (
	OperationCredit        = "credit"
	OperationUpgrade       = "upgrade"
	OperationDowngrade     = "downgrade"
	OperationEnsurePlan    = "ensure_plan"
	OperationCreateRequest = "create_request"
	OperationResolve       = "resolve_request"
	OperationGrant         = "grant_pro"
)

const (
	operationStatusOK    = "ok"
	operationStatusError = "error"

	// Transaction references recorded on ledger rows.
	ReferenceAdminGrant    = "admin-grant"
	ReferenceSelfUpgrade   = "self-upgrade"
	ReferenceAutoRenew     = "auto-renew"
	ReferenceMissingExpiry = "missing-expiry"
	referenceUpgradePrefix = "upgrade:"

	defaultDisplayName       = "MenuByte Owner"
	defaultRejectMessage     = "Payment not confirmed"
	defaultApproveMessage    = "Payment confirmed and Pro activated."
	partialApprovePrefix     = "Wallet credited but upgrade pending: "
	defaultFailureReason     = "Plan activation failed"
	defaultTransactionsLimit = 20
	defaultRequestsLimit     = 100
	defaultUsersLimit        = 200
	maxListLimit             = 200

	hoursPerDay = 24
)
