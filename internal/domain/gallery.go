package domain

import (
	"sort"
	"time"
)

// Collection is a curated set of artists and pieces bound to a visitor.
// Artists maps each artist id to the ids of that artist's pieces in this collection.
type Collection struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Artists     map[string][]string `json:"artists"`
}

// ArtistIDs returns the referenced artist ids in a stable order.
func (c *Collection) ArtistIDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Artists))
	for id := range c.Artists {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PieceIDs returns every referenced piece id once, in first-seen order over ArtistIDs.
func (c *Collection) PieceIDs() []string {
	if c == nil {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, artistID := range c.ArtistIDs() {
		for _, pid := range c.Artists[artistID] {
			if pid == "" || seen[pid] {
				continue
			}
			seen[pid] = true
			out = append(out, pid)
		}
	}
	return out
}

type Artist struct {
	ArtistID    string   `json:"artistId"`
	DisplayName string   `json:"displayName"`
	Bio         string   `json:"bio,omitempty"`
	Nationality string   `json:"nationality,omitempty"`
	BirthYear   *int     `json:"birthYear,omitempty"`
	DeathYear   *int     `json:"deathYear,omitempty"`
	ImagePath   string   `json:"imagePath,omitempty"`
	Active      bool     `json:"active"`
	Pieces      []string `json:"pieces,omitempty"`
}

type Piece struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	ArtistID      string   `json:"artistID"`
	Date          string   `json:"date,omitempty"`
	Description   string   `json:"description,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	WidthInches   *float64 `json:"width_inches,omitempty"`
	HeightInches  *float64 `json:"height_inches,omitempty"`
	ThumbnailPath string   `json:"thumbnail_path,omitempty"`
	ImageHalfPath string   `json:"image_half_path,omitempty"`
	ImageFullPath string   `json:"image_full_path,omitempty"`
	Active        bool     `json:"active"`
}

// GalleryGraph is one loaded collection: the flat lists plus the
// artist → title-sorted pieces index. Treat it as immutable.
type GalleryGraph struct {
	Collection     *Collection         `json:"collection"`
	Artists        []*Artist           `json:"artists"`
	Pieces         []*Piece            `json:"pieces"`
	ArtistPieceMap map[string][]*Piece `json:"artistPieceMap"`
	LoadedAt       time.Time           `json:"loadedAt"`
}
