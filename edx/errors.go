package edx

import "fmt"

// AuthError reports a failed credential acquisition.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// CatalogError reports a listing or detail fetch that failed after all
// fallbacks were exhausted.
type CatalogError struct {
	Op     string
	Status int
	Err    error
}

func (e *CatalogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("catalog: %s: unexpected status %d", e.Op, e.Status)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// EnrollmentError carries the user-facing message for a failed enrollment.
// It is the only error Enroll returns: transport failures and remote error
// bodies are both normalized into it.
type EnrollmentError struct {
	Message string
	Err     error
}

func (e *EnrollmentError) Error() string { return "enrollment: " + e.Message }

func (e *EnrollmentError) Unwrap() error { return e.Err }
