package errors

// ValidationError creates a new validation error (maps to 400 Bad Request).
func ValidationError(message string) *GundeckError {
	return New(CategoryValidation, SeverityWarning, message)
}

// NotFoundError creates a new not-found error (maps to 404).
func NotFoundError(message string) *GundeckError {
	return New(CategoryNotFound, SeverityWarning, message)
}

// ConflictError creates a new conflict error (maps to 409).
func ConflictError(message string) *GundeckError {
	return New(CategoryConflict, SeverityWarning, message)
}

// StructureError signals that a settings file is missing required structure.
// It always aborts before any mutation of the file.
func StructureError(message string) *GundeckError {
	return New(CategoryStructure, SeverityError, message)
}

// RemoteError wraps a failed remote call (network failure or disallowed status).
func RemoteError(err error, message string) *GundeckError {
	return Wrap(err, CategoryRemote, SeverityError, message)
}

// TimeoutError wraps a deadline-exceeded remote call.
func TimeoutError(err error, message string) *GundeckError {
	return Wrap(err, CategoryTimeout, SeverityError, message)
}

// IOError wraps a filesystem failure.
func IOError(err error, message string) *GundeckError {
	return Wrap(err, CategoryFileSystem, SeverityError, message)
}

// ServiceError wraps a failed service-controller invocation.
func ServiceError(err error, message string) *GundeckError {
	return Wrap(err, CategoryService, SeverityError, message)
}

// ConfigError creates a new configuration error.
func ConfigError(message string) *GundeckError {
	return New(CategoryConfig, SeverityFatal, message)
}

// InternalError creates a new internal error.
func InternalError(message string) *GundeckError {
	return New(CategoryInternal, SeverityError, message)
}
