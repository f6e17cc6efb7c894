package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldExpenseID   = "expense_id"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldDate        = "date"
	FieldDescription = "description"
	FieldStartDate   = "start_date"
	FieldEndDate     = "end_date"
	FieldDays        = "days"
	FieldCount       = "count"
	FieldDBPath      = "db_path"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentExpense   = "expense"
	ComponentStorage   = "storage"
	ComponentCLI       = "cli"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpDelete    = "delete"
	OpList      = "list"
	OpAggregate = "aggregate"
	OpRender    = "render"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(id int64, amount, category, date string) LogFields {
	if id > 0 {
		f[FieldExpenseID] = id
	}
	f[FieldAmount] = amount
	f[FieldCategory] = category
	f[FieldDate] = date
	return f
}

// WithRange adds date range fields
func (f LogFields) WithRange(start, end string) LogFields {
	if start != "" {
		f[FieldStartDate] = start
	}
	if end != "" {
		f[FieldEndDate] = end
	}
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
