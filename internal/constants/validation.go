package constants

// Field Length Limits
const (
	MaxNameLength  = 100
	MinPhoneLength = 10
	MaxPhoneLength = 16
	MaxEmailLength = 255
)

// Validation Patterns
const (
	EmailPattern = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	PhonePattern = `^\+?[1-9]\d{1,14}$` // E.164 format
)
