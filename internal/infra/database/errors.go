package database

import "fmt"

// Custom errors returned by the repositories.
var ErrPeriodNotFound = fmt.Errorf("period not found")
var ErrDuplicatePeriodLabel = fmt.Errorf("period with this label already exists")
var ErrSettingsNotFound = fmt.Errorf("automation settings not found")
var ErrReminderEventNotFound = fmt.Errorf("reminder event not found")
