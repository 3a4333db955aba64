package providers

import "strings"

// Status is the connectivity state shown next to each provider.
type Status string

const (
	StatusUnchecked   Status = "unchecked"
	StatusConfigured  Status = "configured"
	StatusWorking     Status = "working"
	StatusUnavailable Status = "unavailable"
)

const statusErrorPrefix = "error:"

func ErrorStatus(detail string) Status {
	return Status(statusErrorPrefix + Truncate(detail, DetailLimit))
}

func (s Status) IsError() bool {
	return strings.HasPrefix(string(s), statusErrorPrefix)
}

// Usable reports whether a call may be attempted at all.
func (s Status) Usable() bool {
	return s != StatusUnavailable
}
