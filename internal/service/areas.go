// Package service holds the business operations behind the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/repository"
)

// ErrInvalidInput marks request validation failures; handlers map it to 400.
var ErrInvalidInput = errors.New("invalid input")

type AreasService struct {
	repo repository.AreasRepository
}

func NewAreasService(repo repository.AreasRepository) *AreasService {
	return &AreasService{repo: repo}
}

type CreateAreaInput struct {
	Name     string
	Geometry json.RawMessage
	Metadata map[string]any
}

func (s *AreasService) Create(ctx context.Context, input CreateAreaInput) (*domain.Area, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > 256 {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(input.Geometry) == 0 {
		return nil, fmt.Errorf("%w: geometry is required", ErrInvalidInput)
	}

	polygon, err := domain.UnmarshalGeoJSON(input.Geometry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	area := &domain.Area{
		Name:     name,
		Geometry: polygon,
		Metadata: input.Metadata,
	}
	if err := s.repo.CreateArea(ctx, area); err != nil {
		return nil, fmt.Errorf("create area: %w", err)
	}
	return area, nil
}

func (s *AreasService) Get(ctx context.Context, areaID int64) (*domain.Area, error) {
	return s.repo.GetArea(ctx, areaID)
}

func (s *AreasService) List(ctx context.Context) ([]*domain.Area, error) {
	return s.repo.ListAreas(ctx)
}
