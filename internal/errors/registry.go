package errors

// Registered error codes.
const (
	CodeAuthRequired   = "M100"
	CodeSessionExpired = "M101"

	CodeInvalidInput    = "M200"
	CodeEmptyMessage    = "M201"
	CodeMessageTooLong  = "M202"
	CodeFileTooLarge    = "M203"
	CodeFileTypeDenied  = "M204"
	CodeMissingArgument = "M205"

	CodeRemoteFailed  = "M300"
	CodeRemoteTimeout = "M301"
	CodeNotFound      = "M302"
	CodeConflict      = "M303"

	CodePartialResults = "M400"

	CodeInvalidConfig = "M500"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	CodeAuthRequired: {
		Category: CategoryAuth,
		Message:  "Please sign in to continue",
		Detail:   "The action requires an authenticated user and no identity is present.",
	},
	CodeSessionExpired: {
		Category: CategoryAuth,
		Message:  "Your session has expired",
		Detail:   "The identity token is expired or was signed with an unknown key.",
	},

	CodeInvalidInput: {
		Category: CategoryValidation,
		Message:  "Invalid input",
		Detail:   "A local precondition failed before any remote call was made.",
	},
	CodeEmptyMessage: {
		Category: CategoryValidation,
		Message:  "Message cannot be empty",
	},
	CodeMessageTooLong: {
		Category: CategoryValidation,
		Message:  "Message is too long",
	},
	CodeFileTooLarge: {
		Category: CategoryValidation,
		Message:  "File is too large",
	},
	CodeFileTypeDenied: {
		Category: CategoryValidation,
		Message:  "File type is not allowed",
	},
	CodeMissingArgument: {
		Category: CategoryValidation,
		Message:  "A required value is missing",
	},

	CodeRemoteFailed: {
		Category: CategoryRemote,
		Message:  "Something went wrong. Please try again",
		Detail:   "The remote call failed; local state was restored.",
	},
	CodeRemoteTimeout: {
		Category: CategoryRemote,
		Message:  "The request took too long. Please try again",
		Detail:   "The remote call did not settle within the configured timeout.",
	},
	CodeNotFound: {
		Category: CategoryRemote,
		Message:  "Not found",
	},
	CodeConflict: {
		Category: CategoryRemote,
		Message:  "Already exists",
	},

	CodePartialResults: {
		Category: CategoryPartial,
		Message:  "Some results could not be loaded",
		Detail:   "One or more sources failed while the others returned results.",
	},

	CodeInvalidConfig: {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
