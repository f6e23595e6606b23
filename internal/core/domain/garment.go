package domain

// Garment is a selectable clothing item from the catalog.
type Garment struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	ThumbnailURL string `json:"thumbnail_url" yaml:"thumbnail_url"`
	Description  string `json:"description,omitempty" yaml:"description"`
	ObjectKey    string `json:"object_key,omitempty" yaml:"object_key"`
}
