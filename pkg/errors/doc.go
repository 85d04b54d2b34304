// Package errors provides the structured error type shared by the provider's
// services and HTTP handlers.
//
// Every Error carries a Kind, which decides the HTTP status, and an ErrorCode,
// which is what clients see in the "error" member of OAuth responses. Grant
// errors also carry a Reason naming the exact check that failed, and
// validation errors carry one Issue per offending field.
//
// # Basic Usage
//
//	err := errors.Validation("Invalid registration",
//		errors.Issue{Field: "email", Code: "invalid_email", Message: "Invalid email"})
//
//	err := errors.Grant("code_expired", "Authorization code expired")
//
//	err := errors.Internal(dbErr, "failed to look up user")
//
// # Inspection
//
//	if errors.IsKind(err, errors.KindGrant) {
//		slog.Info("Grant rejected", "reason", errors.ReasonOf(err))
//	}
//
//	e := errors.As(err) // plain errors become KindInternal
//	status := e.HTTPStatusCode()
//	msg := e.PublicMessage() // never exposes internal causes
//
// Is and As from the standard library keep working through Unwrap, so
// sentinel errors such as user.ErrUserNotFound can be wrapped freely.
package errors
