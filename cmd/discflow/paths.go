package main

import (
	"fmt"
	"strings"

	"discflow/internal/config"
)

func expandArg(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("path argument is empty")
	}
	path, err := config.ExpandPath(value)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", value, err)
	}
	return path, nil
}
