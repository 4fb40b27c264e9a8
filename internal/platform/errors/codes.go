// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Catalog errors
	CodeProcedureNameEmpty       Code = "PROCEDURE_NAME_EMPTY"
	CodeProcedureSourceUnknown   Code = "PROCEDURE_SOURCE_TEMPLATE_UNKNOWN"
	CodeProcessNameEmpty         Code = "PROCESS_NAME_EMPTY"
	CodeActionNameEmpty          Code = "ACTION_NAME_EMPTY"

	// Instantiation errors
	CodeRunTargetEmpty           Code = "RUN_TARGET_ENTITY_EMPTY"
	CodeRunDueDateInvalid        Code = "RUN_DUE_DATE_INVALID"
	CodeRunAssignmentsIncomplete Code = "RUN_ASSIGNMENTS_INCOMPLETE"

	// Action run errors
	CodeActionRunNotAssignee    Code = "ACTION_RUN_NOT_ASSIGNEE"
	CodeStatusNotVisible        Code = "STATUS_NOT_VISIBLE"
	CodeStatusTransitionBlocked Code = "STATUS_TRANSITION_BLOCKED"

	// Projection errors
	CodeMonthOutOfRange Code = "MONTH_OUT_OF_RANGE"

	// Identity errors
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeCapabilityMissing Code = "CAPABILITY_MISSING"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"
)

// HTTPStatus maps domain codes to HTTP response status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - empty or malformed input
	case CodeProcedureNameEmpty,
		CodeProcessNameEmpty,
		CodeActionNameEmpty,
		CodeRunTargetEmpty,
		CodeRunDueDateInvalid,
		CodeMonthOutOfRange:
		return http.StatusBadRequest

	// Unprocessable - input was well-formed but violates a domain rule
	case CodeProcedureSourceUnknown,
		CodeRunAssignmentsIncomplete,
		CodeStatusNotVisible,
		CodeStatusTransitionBlocked:
		return http.StatusUnprocessableEntity

	case CodeUnauthenticated:
		return http.StatusUnauthorized

	case CodeActionRunNotAssignee,
		CodeCapabilityMissing:
		return http.StatusForbidden

	case CodeNotFound:
		return http.StatusNotFound

	case CodeConflict:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
