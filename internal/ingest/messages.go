package ingest

// messages.go maps technical errors to user-facing messages with a code
// support staff can look up.
//
// Codes by category:
//
//	FILE001 file too large            FILE004 no file provided
//	FILE002 not a valid CSV           FILE005 empty file / no data records
//	FILE003 encoding error            FILE006 unsupported format
//
//	IMP001 malformed header           IMP004 endpoint returned an error status
//	IMP002 missing required fields    IMP005 invalid chunk payload
//	IMP003 endpoint returned HTML     IMP006 unknown state
//
//	UPL001 upload cancelled           UPL004 request cancelled
//	UPL002 system busy                UPL005 request timed out
//
//	DB001 duplicate key               DB005 connection reset
//	DB002 unique constraint           DB006 timeout
//	DB004 connection refused          DB007 deadlock
//
//	RATE001 rate limited
//	ERR000 anything else; check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains, first match
// wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is user-friendly error information with a suggested action.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File
	{"file exceeds maximum allowed size", UserMessage{"File exceeds the maximum upload size", "Split the file or compress it before uploading", "FILE001"}},
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file or compress it before uploading", "FILE001"}},
	{"not a valid csv", UserMessage{"File is not a valid CSV", "Save the sheet as comma, semicolon, tab or pipe separated text", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to import", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a file with a header row and data rows", "FILE005"}},
	{"no data records", UserMessage{"The file has no usable data rows", "Check that rows have a code or a name", "FILE005"}},
	{"unsupported file format", UserMessage{"This file format is not supported", "Use .csv, .tsv, .txt or .xlsx, optionally compressed", "FILE006"}},

	// Import
	{"malformed header", UserMessage{"The header row could not be read", "Make sure the first line holds the column names", "IMP001"}},
	{"missing required fields", UserMessage{"Some rows are missing required fields", "Fill in code, name, level, category and state", "IMP002"}},
	{"returned html instead of json", UserMessage{"The server timed out on part of the file", "Retry with a smaller chunk size", "IMP003"}},
	{"upload failed with status", UserMessage{"The server rejected part of the file", "Review the listed chunk errors and retry", "IMP004"}},
	{"invalid chunk data structure", UserMessage{"The chunk payload was not understood", "Send records, chunkNumber, totalChunks and isLastChunk", "IMP005"}},
	{"x-chunk-upload", UserMessage{"The request is not a chunk upload", "Send chunks with the X-Chunk-Upload: true header", "IMP007"}},
	{"not found", UserMessage{"A referenced state does not exist", "Use the state names configured on the server", "IMP006"}},

	// Upload
	{"upload cancelled", UserMessage{"Upload was cancelled", "Start a new upload when ready", "UPL001"}},
	{"too many concurrent uploads", UserMessage{"System is busy processing other uploads", "Please wait a moment and try again", "UPL002"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Retry with a smaller chunk size or check your connection", "UPL005"}},

	// Database
	{"duplicate key", UserMessage{"A record with this code already exists", "Check the file for repeated codes", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check the file for duplicate entries", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Rate limiting
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Unknown
// errors map to ERR000. A nil error yields the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
