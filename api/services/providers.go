package services

import (
	"fmt"

	"github.com/voxlearn/voxlearn/api/domain"
	"github.com/voxlearn/voxlearn/audio/provider"
)

func parseProvider(s string) (provider.ID, error) {
	p, err := provider.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w", err, domain.ErrInvalidInput)
	}
	return p, nil
}
