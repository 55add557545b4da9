package evm

import "errors"

// Status is the outcome of a single check
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// ErrOffsetOutOfRange is returned when an immutable or link reference points
// outside the bytecode it describes
var ErrOffsetOutOfRange = errors.New("reference offset out of range")

// Icon returns the one-character marker used in printed reports
func (s Status) Icon() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusFail:
		return "✗"
	case StatusWarn:
		return "!"
	default:
		return "-"
	}
}

// Worst folds statuses: fail beats warn beats pass beats skip.
// An empty input yields skip.
func Worst(statuses ...Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusFail:
			return 3
		case StatusWarn:
			return 2
		case StatusPass:
			return 1
		}
		return 0
	}
	out := StatusSkip
	for _, s := range statuses {
		if rank(s) > rank(out) {
			out = s
		}
	}
	return out
}
