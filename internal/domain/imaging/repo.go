package imaging

import "context"

// Repository reads people and images from the imaging database.
type Repository interface {
	// FindPerson returns nil with no error when the national ID is unknown
	// to the imaging database.
	FindPerson(ctx context.Context, nationalID string) (*Person, error)
	// ListImageIDs returns the IDs of all images stored for a person.
	ListImageIDs(ctx context.Context, personID int64) ([]int64, error)
	// GetImages loads image rows including pixel data.
	GetImages(ctx context.Context, imageIDs []int64) ([]*Image, error)
}
