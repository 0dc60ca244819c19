package availability

import "errors"

var (
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrInvalidDuration  = errors.New("invalid slot duration")
	ErrInvalidTimezone  = errors.New("invalid timezone")
	ErrInvalidPeriod    = errors.New("invalid weekly period")
	ErrScheduleNotFound = errors.New("schedule not found")
)
