// Package cli provides the small terminal interaction helpers the command
// entry point needs: a yes/no confirm prompt and the interactive Prompter
// that answers missing recipe variables.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/recipe-core/engine/internal/recipe"
)

// Confirm asks a yes/no question with the given default. Returns true for
// yes, false for no.
func Confirm(prompt string, defaultYes bool) (bool, error) {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s ", prompt, suffix)

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading response: %w", err)
	}
	response = strings.TrimSpace(strings.ToLower(response))
	if response == "" {
		return defaultYes, nil
	}
	return response == "y" || response == "yes", nil
}

// VarPrompter implements recipe.Prompter for an interactive terminal
// session, showing the variable's description and default (if any).
type VarPrompter struct{}

// Prompt asks for one missing variable's value on stdin/stdout.
func (VarPrompter) Prompt(name string, def recipe.VariableDef) (string, error) {
	label := name
	if def.Description != "" {
		label = fmt.Sprintf("%s (%s)", name, def.Description)
	}
	if def.Default != nil {
		fmt.Printf("%s [%v]: ", label, def.Default)
	} else {
		fmt.Printf("%s: ", label)
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading response: %w", err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" && def.Default != nil {
		return fmt.Sprintf("%v", def.Default), nil
	}
	return answer, nil
}
