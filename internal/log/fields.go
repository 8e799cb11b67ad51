package log

// Common field names for structured logging
const (
	FieldComponent          = "component"
	FieldRequestID          = "request_id"
	FieldClientIP           = "client_ip"
	FieldMethod             = "method"
	FieldPath               = "path"
	FieldRoute              = "route"
	FieldQuery              = "query"
	FieldStatusCode         = "status_code"
	FieldDuration           = "duration_ms"
	FieldUserAgent          = "user_agent"
	FieldReferer            = "referer"
	FieldSuccess            = "success"
	FieldError              = "error"
	FieldOperation          = "operation"
	FieldStudentID          = "student_id"
	FieldParentID           = "parent_id"
	FieldRegistrationNumber = "registration_number"
	FieldRollNumber         = "roll_number"
	FieldClassName          = "class_name"
	FieldSession            = "session"
	FieldMonth              = "month"
	FieldAmountPaise        = "amount_paise"
	FieldEventType          = "event_type"
	FieldRegisterRef        = "register_ref"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAdmission = "admission"
	ComponentFees      = "fees"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpAdmit    = "admit"
	OpReadmit  = "readmit"
	OpConfirm  = "confirm"
	OpAppend   = "append"
	OpValidate = "validate"
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
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
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

// WithStudent adds the identifiers of a student.
func (f LogFields) WithStudent(id, registrationNumber, rollNumber, className string) LogFields {
	f[FieldStudentID] = id
	if registrationNumber != "" {
		f[FieldRegistrationNumber] = registrationNumber
	}
	if rollNumber != "" {
		f[FieldRollNumber] = rollNumber
	}
	if className != "" {
		f[FieldClassName] = className
	}
	return f
}

// WithParent adds the parent id.
func (f LogFields) WithParent(id string) LogFields {
	f[FieldParentID] = id
	return f
}

// WithEvent adds the type of a ledger event and the student, session and
// month it refers to. Empty values are skipped.
func (f LogFields) WithEvent(eventType, studentID, session, month string) LogFields {
	f[FieldEventType] = eventType
	if studentID != "" {
		f[FieldStudentID] = studentID
	}
	return f.WithLedgerMonth(session, month)
}

// WithLedgerMonth adds session and month fields. Empty values are skipped.
func (f LogFields) WithLedgerMonth(session, month string) LogFields {
	if session != "" {
		f[FieldSession] = session
	}
	if month != "" {
		f[FieldMonth] = month
	}
	return f
}

// WithAmount adds an amount in paise.
func (f LogFields) WithAmount(paise int64) LogFields {
	f[FieldAmountPaise] = paise
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	if referer != "" {
		f[FieldReferer] = referer
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
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
