package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldEmail      = "email"
	FieldExpenseID  = "expense_id"
	FieldCategoryID = "category_id"
	FieldCategory   = "category"
	FieldAmount     = "amount_cents"
	FieldProvider   = "provider"
	FieldRetried    = "retried"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentGateway  = "gateway"
	ComponentSession  = "session"
	ComponentExpenses = "expenses"
	ComponentToken    = "token"
	ComponentNotify   = "notify"
	ComponentExport   = "export"
	ComponentCLI      = "cli"
)

// Operations defines standard operation names
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpList    = "list"
	OpSignIn  = "sign_in"
	OpSignOut = "sign_out"
	OpRefresh = "refresh"
	OpExport  = "export"
)
