package txstore

import "fmt"

// Status is the lifecycle state of a VRF transaction record.
//
//	New ──claim──▶ Processing ──▶ Processed
//	                    │  ▲
//	                    │  └──claim── RetryableError
//	                    ├──▶ RetryableError
//	                    └──▶ FatalError
type Status int

const (
	StatusNew Status = iota + 1
	StatusProcessing
	StatusProcessed
	StatusFatalError
	StatusRetryableError
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{
	StatusNew,
	StatusProcessing,
	StatusProcessed,
	StatusFatalError,
	StatusRetryableError,
}

// claimable are the states a record may be claimed from.
var claimable = []int32{
	encodeStatus(StatusNew),
	encodeStatus(StatusRetryableError),
}

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusProcessing:
		return "processing"
	case StatusProcessed:
		return "processed"
	case StatusFatalError:
		return "fatal_error"
	case StatusRetryableError:
		return "retryable_error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFatalError
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for _, s := range Statuses {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// Storage codes. These values are persisted and must not change.
const (
	codeNew            int32 = 1
	codeProcessing     int32 = 2
	codeProcessed      int32 = 3
	codeFatalError     int32 = 4
	codeRetryableError int32 = 5
)

func encodeStatus(s Status) int32 {
	switch s {
	case StatusNew:
		return codeNew
	case StatusProcessing:
		return codeProcessing
	case StatusProcessed:
		return codeProcessed
	case StatusFatalError:
		return codeFatalError
	case StatusRetryableError:
		return codeRetryableError
	default:
		panic(fmt.Sprintf("txstore: cannot encode status %d", int(s)))
	}
}

func decodeStatus(code int32) (Status, error) {
	switch code {
	case codeNew:
		return StatusNew, nil
	case codeProcessing:
		return StatusProcessing, nil
	case codeProcessed:
		return StatusProcessed, nil
	case codeFatalError:
		return StatusFatalError, nil
	case codeRetryableError:
		return StatusRetryableError, nil
	default:
		return 0, fmt.Errorf("unknown status code %d", code)
	}
}
