package imaging

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dentalops/handover/internal/platform/staging"
)

type Service struct {
	repo   Repository
	stage  *staging.Stage
	logger zerolog.Logger
}

func NewService(repo Repository, stage *staging.Stage, logger zerolog.Logger) *Service {
	return &Service{repo: repo, stage: stage, logger: logger}
}

// FetchArtifacts looks the patient up in the imaging database and, when
// images exist, bundles them into a zip in the patient's staging directory.
// An unknown person or a person without images yields an empty set, not an
// error; the handover proceeds without imagery.
func (s *Service) FetchArtifacts(ctx context.Context, nationalID string) (*ArtifactSet, error) {
	person, err := s.repo.FindPerson(ctx, nationalID)
	if err != nil {
		return nil, fmt.Errorf("find person in imaging database: %w", err)
	}
	if person == nil {
		s.logger.Info().Msg("patient unknown to imaging database")
		return &ArtifactSet{}, nil
	}
	if person.FullName() == "" {
		s.logger.Info().Int64("person_id", person.ID).Msg("imaging person has no name, skipping images")
		return &ArtifactSet{}, nil
	}

	ids, err := s.repo.ListImageIDs(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("list images for person %d: %w", person.ID, err)
	}
	if len(ids) == 0 {
		s.logger.Info().Int64("person_id", person.ID).Msg("no images stored for patient")
		return &ArtifactSet{PersonName: person.FullName()}, nil
	}

	images, err := s.repo.GetImages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load image data for person %d: %w", person.ID, err)
	}

	files := make([]staging.File, 0, len(images))
	for _, img := range images {
		if len(img.Data) == 0 {
			s.logger.Warn().Int64("image_id", img.ID).Msg("skipping image with empty payload")
			continue
		}
		files = append(files, staging.File{Name: img.Filename(), Data: img.Data})
	}
	if len(files) == 0 {
		return &ArtifactSet{PersonName: person.FullName()}, nil
	}

	bundleName := fmt.Sprintf("%s - images.zip", person.FullName())
	bundlePath, err := s.stage.Bundle(nationalID, bundleName, files)
	if err != nil {
		return nil, fmt.Errorf("bundle images: %w", err)
	}

	s.logger.Info().
		Int("count", len(files)).
		Str("bundle", bundleName).
		Msg("image bundle created")

	return &ArtifactSet{
		PersonName: person.FullName(),
		Count:      len(files),
		BundleName: bundleName,
		BundlePath: bundlePath,
	}, nil
}
