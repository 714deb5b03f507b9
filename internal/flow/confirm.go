package flow

import "strings"

// Verdict is the interpretation of a user reply at a confirmation step.
type Verdict int

const (
	ConfirmUnclear Verdict = iota
	ConfirmYes
	ConfirmNo
)

var affirmatives = map[string]bool{
	"да":    true,
	"верно": true,
	"yes":   true,
	"ок":    true,
	"ok":    true,
}

var negatives = map[string]bool{
	"нет": true,
	"no":  true,
}

// ParseConfirmation interprets a free-text reply at a yes/no step.
func ParseConfirmation(text string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Trim(normalized, ".,!")
	switch {
	case affirmatives[normalized]:
		return ConfirmYes
	case negatives[normalized]:
		return ConfirmNo
	default:
		return ConfirmUnclear
	}
}

// IsResetCommand reports whether the message asks to abandon the active flow.
func IsResetCommand(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	return normalized == "/reset" || normalized == "/cancel" || normalized == "отмена"
}
