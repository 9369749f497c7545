package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// Confirm asks a yes/no question; anything but an explicit yes is a no.
func Confirm(question string) (bool, error) {
	answer, err := Prompt(question, No, Yes)
	if err != nil {
		return false, err
	}
	return answer == Yes, nil
}

// Prompt reads one answer. With constraints, the first one is the default
// and any answer outside them falls back to it.
func Prompt(question string, constraints ...string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString(question)
	if len(constraints) > 0 {
		prompt.WriteString(" [")
		prompt.WriteString(strings.ToUpper(constraints[0]))
		for _, c := range constraints[1:] {
			prompt.WriteString("/")
			prompt.WriteString(c)
		}
		prompt.WriteString("]: ")
	}
	rl, err := readline.New(prompt.String())
	if err != nil {
		return "", err
	}
	defer func() { _ = rl.Close() }()
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	if len(constraints) == 0 {
		return response, nil
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return normalized, nil
		}
	}
	return constraints[0], nil
}
