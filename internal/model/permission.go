package model

// Permission represents a string code for a specific admin action.
type Permission string

const (
	// PermissionExamsRead allows viewing exam definitions and attempts.
	PermissionExamsRead Permission = "exams:read"

	// PermissionExamsWrite allows creating exams and changing their status.
	PermissionExamsWrite Permission = "exams:write"

	// PermissionExamsProctor allows driving synchronized exams and watching the monitor.
	PermissionExamsProctor Permission = "exams:proctor"
)
