package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound                 = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists            = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput             = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict      = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrTenantIsolationViolation = NewDomainError("TENANT_ISOLATION_VIOLATION", "Row belongs to a different tenant")
	ErrAccessContextMissing     = NewDomainError("ACCESS_CONTEXT_MISSING", "No access context found in request context")
	ErrCursorRegression         = NewDomainError("CURSOR_REGRESSION", "Sync cursor can never move backwards")
	ErrConflictResolved         = NewDomainError("CONFLICT_RESOLVED", "Conflict has already been resolved")
	ErrUntrackedTable           = NewDomainError("UNTRACKED_TABLE", "Table is not registered for change capture")
)
