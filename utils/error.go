package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorInvalidTransition is returned when a manual action requests a
// status change the record lifecycle does not allow.
var ErrorInvalidTransition = errors.New("invalid status transition")
