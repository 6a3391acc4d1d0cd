// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Header Errors (HEAD001-HEAD099)
//
//	HEAD001 - Missing column: A required column is missing from the header row
//	          Action: Download the template again and keep its header row
//	          Patterns: "missing required columns"
//
//	HEAD002 - Sheet not found: The workbook has no sheet with the expected name
//	          Action: Upload the workbook generated for this template
//	          Sentinel: ErrSheetNotFound
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Type mismatch: A cell holds a value of the wrong type
//	         Action: Check dates and numbers in the highlighted cells
//	         Patterns: "data type mismatch", "cannot convert"
//
//	VAL002 - Not an option: A value is not one of the dropdown options
//	         Action: Pick a value from the cell's dropdown
//	         Patterns: "is not one of"
//
//	VAL003 - Required field: A required cell is empty
//	         Action: Fill in the highlighted cells
//	         Patterns: "is required"
//
// # Rule Errors (RULE001-RULE099)
//
// Returned when a template declares an impossible dropdown.
//
//	RULE001 - No location: ErrNoLocator
//	RULE002 - No parent: ErrNoParent
//	RULE003 - Negative index: ErrNegativeIndex
//	RULE004 - No options: ErrNoOptions
//	RULE005 - Cascade value unusable as a name: ErrCascadeName
//	RULE006 - Ambiguous location: ErrTwoLocators
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: ErrFileTooLarge, "file too large"
//	FILE002 - Invalid CSV: "parse csv"
//	FILE003 - Invalid workbook: "open workbook", "zip: not a valid zip file"
//	FILE004 - No file: ErrNoFile
//	FILE005 - Unsupported format: ErrUnsupportedFormat
//
// # Template Errors (TPL001-TPL099)
//
//	TPL001 - Template not found: ErrTemplateNotFound
//	TPL002 - Invalid template file: "template file"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - System busy: ErrTooManyUploads
//	UPL002 - Request cancelled: context.Canceled
//	UPL003 - Request timeout: context.DeadlineExceeded
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused: "connection refused"
//	DB002 - Duplicate key: "duplicate key"
//
// # Default Error (ERR000)
//
// Fallback when no sentinel or pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Matching
//
// Sentinel errors are matched with errors.Is first. Otherwise patterns are
// matched case-insensitively using strings.Contains and the first match wins.

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorSentinel struct {
	err error
	msg UserMessage
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorSentinels = []errorSentinel{
	{ErrSheetNotFound, UserMessage{
		Message: "The workbook doesn't contain the expected sheet",
		Action:  "Upload the workbook generated for this template",
		Code:    "HEAD002",
	}},
	{ErrNoLocator, UserMessage{
		Message: "A dropdown has no column, field or header",
		Action:  "Fix the template definition",
		Code:    "RULE001",
	}},
	{ErrNoParent, UserMessage{
		Message: "A cascading dropdown has no parent",
		Action:  "Fix the template definition",
		Code:    "RULE002",
	}},
	{ErrNegativeIndex, UserMessage{
		Message: "A dropdown uses a negative row or column",
		Action:  "Fix the template definition",
		Code:    "RULE003",
	}},
	{ErrNoOptions, UserMessage{
		Message: "A dropdown has no options",
		Action:  "Fix the template definition",
		Code:    "RULE004",
	}},
	{ErrCascadeName, UserMessage{
		Message: "A cascading dropdown's parent value can't be used as a workbook name",
		Action:  "Use parent values and dictionary sheet names made of letters, digits, underscores and dots",
		Code:    "RULE005",
	}},
	{ErrTwoLocators, UserMessage{
		Message: "A dropdown names more than one column location",
		Action:  "Fix the template definition",
		Code:    "RULE006",
	}},
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{ErrNoFile, UserMessage{
		Message: "No file was selected",
		Action:  "Please select a file to upload",
		Code:    "FILE004",
	}},
	{ErrUnsupportedFormat, UserMessage{
		Message: "Only .xlsx and .csv files are supported",
		Action:  "Save the file as an Excel workbook or CSV",
		Code:    "FILE005",
	}},
	{ErrTemplateNotFound, UserMessage{
		Message: "Template not found",
		Action:  "Verify the template name is correct",
		Code:    "TPL001",
	}},
	{ErrTooManyUploads, UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL001",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or check your connection",
		Code:    "UPL003",
	}},
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Header and cell errors
	// =========================================================================
	{
		pattern: "missing required columns",
		msg: UserMessage{
			Message: "A required column is missing from the header row",
			Action:  "Download the template again and keep its header row",
			Code:    "HEAD001",
		},
	},
	{
		pattern: TypeMismatchMessage,
		msg: UserMessage{
			Message: "A cell holds a value of the wrong type",
			Action:  "Check dates and numbers in the highlighted cells",
			Code:    "VAL001",
		},
	},
	{
		pattern: "cannot convert",
		msg: UserMessage{
			Message: "A cell holds a value of the wrong type",
			Action:  "Check dates and numbers in the highlighted cells",
			Code:    "VAL001",
		},
	},
	{
		pattern: "is not one of",
		msg: UserMessage{
			Message: "A value is not one of the dropdown options",
			Action:  "Pick a value from the cell's dropdown",
			Code:    "VAL002",
		},
	},
	{
		pattern: "is required",
		msg: UserMessage{
			Message: "A required cell is empty",
			Action:  "Fill in the highlighted cells",
			Code:    "VAL003",
		},
	},

	// =========================================================================
	// File errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with balanced quotes",
			Code:    "FILE002",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "File is not a valid Excel workbook",
			Action:  "Save the file as .xlsx and upload it again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "zip: not a valid zip file",
		msg: UserMessage{
			Message: "File is not a valid Excel workbook",
			Action:  "Save the file as .xlsx and upload it again",
			Code:    "FILE003",
		},
	},

	// =========================================================================
	// Template files
	// =========================================================================
	{
		pattern: "template file",
		msg: UserMessage{
			Message: "A template definition file is invalid",
			Action:  "Check the template file named in the server log",
			Code:    "TPL002",
		},
	},

	// =========================================================================
	// Database
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check for duplicate rows in your file",
			Code:    "DB002",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Sentinel
// errors anywhere in the chain win over text patterns.
//
// Example:
//
//	msg := MapError(fmt.Errorf("rule 3: %w", ErrNoOptions))
//	// msg.Code == "RULE004"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range errorSentinels {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
