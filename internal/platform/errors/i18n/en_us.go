package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeProcedureNameEmpty       = "PROCEDURE_NAME_EMPTY"
	CodeProcedureSourceUnknown   = "PROCEDURE_SOURCE_TEMPLATE_UNKNOWN"
	CodeProcessNameEmpty         = "PROCESS_NAME_EMPTY"
	CodeActionNameEmpty          = "ACTION_NAME_EMPTY"
	CodeRunTargetEmpty           = "RUN_TARGET_ENTITY_EMPTY"
	CodeRunDueDateInvalid        = "RUN_DUE_DATE_INVALID"
	CodeRunAssignmentsIncomplete = "RUN_ASSIGNMENTS_INCOMPLETE"
	CodeActionRunNotAssignee     = "ACTION_RUN_NOT_ASSIGNEE"
	CodeStatusNotVisible         = "STATUS_NOT_VISIBLE"
	CodeStatusTransitionBlocked  = "STATUS_TRANSITION_BLOCKED"
	CodeMonthOutOfRange          = "MONTH_OUT_OF_RANGE"
	CodeUnauthenticated          = "UNAUTHENTICATED"
	CodeCapabilityMissing        = "CAPABILITY_MISSING"
	CodeNotFound                 = "NOT_FOUND"
	CodeConflict                 = "CONFLICT"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Catalog errors
		CodeProcedureNameEmpty:     "Procedure name cannot be empty",
		CodeProcedureSourceUnknown: "Source template {{.TemplateID}} does not exist",
		CodeProcessNameEmpty:       "Process name cannot be empty",
		CodeActionNameEmpty:        "Action name cannot be empty",

		// Instantiation errors
		CodeRunTargetEmpty:           "Target entity is required",
		CodeRunDueDateInvalid:        "Due date {{.DueDate}} is not a valid YYYY-MM-DD date",
		CodeRunAssignmentsIncomplete: "Assignments are missing for actions: {{.MissingActions}}",

		// Action run errors
		CodeActionRunNotAssignee:    "Only the assignee may update this action",
		CodeStatusNotVisible:        "Status {{.StatusID}} is not available to this company",
		CodeStatusTransitionBlocked: "Transition from {{.FromStatus}} to {{.ToStatus}} is not allowed",

		// Projection errors
		CodeMonthOutOfRange: "Month {{.Month}} is out of range",

		// Identity errors
		CodeUnauthenticated:   "Authentication is required",
		CodeCapabilityMissing: "Missing capability {{.Capability}}",

		// Storage errors
		CodeNotFound: "The requested resource was not found",
		CodeConflict: "The request conflicts with existing data",
	},
}
