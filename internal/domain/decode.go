package domain

import (
	"fmt"
	"strings"

	"github.com/yungbote/gallery-client/internal/docstore"
	apperr "github.com/yungbote/gallery-client/internal/pkg/errors"
)

// CollectionFromDocument decodes a collection and normalises its artist
// association. Each artist entry is either a list of piece ids or an object
// carrying a "pieces" list; any other shape keeps the artist with no pieces.
func CollectionFromDocument(doc *docstore.Document) (*Collection, error) {
	const op = "decode collection"
	if doc == nil || !doc.Exists {
		return nil, apperr.NotFound(op, "collection document missing")
	}
	name, err := docstore.StringOpt(doc.Data, "name")
	if err != nil {
		return nil, apperr.Malformed(op, err.Error())
	}
	desc, err := docstore.StringOpt(doc.Data, "description")
	if err != nil {
		return nil, apperr.Malformed(op, err.Error())
	}
	c := &Collection{ID: doc.ID, Name: name, Description: desc, Artists: map[string][]string{}}

	raw, ok := doc.Data["artists"]
	if !ok || raw == nil {
		return c, nil
	}
	artists, ok := raw.(map[string]any)
	if !ok {
		return nil, apperr.Malformed(op, fmt.Sprintf("field \"artists\": want map got %T", raw))
	}
	for artistID, entry := range artists {
		artistID = strings.TrimSpace(artistID)
		if artistID == "" {
			continue
		}
		c.Artists[artistID] = normalizeArtistEntry(entry)
	}
	return c, nil
}

func normalizeArtistEntry(entry any) []string {
	switch v := entry.(type) {
	case []any, []string:
		ids, err := docstore.StringList(v)
		if err != nil {
			return []string{}
		}
		return ids
	case map[string]any:
		ids, err := docstore.StringList(v["pieces"])
		if err != nil || ids == nil {
			return []string{}
		}
		return ids
	default:
		return []string{}
	}
}

func ArtistFromDocument(doc *docstore.Document) (*Artist, error) {
	const op = "decode artist"
	if doc == nil || !doc.Exists {
		return nil, apperr.NotFound(op, "artist document missing")
	}
	d := doc.Data
	a := &Artist{ArtistID: doc.ID}
	var err error
	if a.DisplayName, err = docstore.String(d, "displayName"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if strings.TrimSpace(a.DisplayName) == "" {
		return nil, apperr.Malformed(op, doc.ID+": empty displayName")
	}
	if a.Bio, err = docstore.StringOpt(d, "bio"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if a.Nationality, err = docstore.StringOpt(d, "nationality"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if a.ImagePath, err = docstore.StringOpt(d, "imagePath"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if a.BirthYear, err = docstore.IntOpt(d, "birthYear"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if a.DeathYear, err = docstore.IntOpt(d, "deathYear"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if a.Active, err = docstore.BoolOpt(d, "active", true); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if a.Pieces, err = docstore.StringList(d["pieces"]); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": pieces: "+err.Error())
	}
	return a, nil
}

func PieceFromDocument(doc *docstore.Document) (*Piece, error) {
	const op = "decode piece"
	if doc == nil || !doc.Exists {
		return nil, apperr.NotFound(op, "piece document missing")
	}
	d := doc.Data
	p := &Piece{ID: doc.ID}
	var err error
	if p.Title, err = docstore.String(d, "title"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if p.ArtistID, err = docstore.String(d, "artistID"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"date", &p.Date},
		{"description", &p.Description},
		{"notes", &p.Notes},
		{"thumbnail_path", &p.ThumbnailPath},
		{"image_half_path", &p.ImageHalfPath},
		{"image_full_path", &p.ImageFullPath},
	}
	for _, s := range strs {
		if *s.dst, err = docstore.StringOpt(d, s.key); err != nil {
			return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
		}
	}
	if p.WidthInches, err = docstore.FloatOpt(d, "width_inches"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if p.HeightInches, err = docstore.FloatOpt(d, "height_inches"); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	if p.Active, err = docstore.BoolOpt(d, "active", false); err != nil {
		return nil, apperr.Malformed(op, doc.ID+": "+err.Error())
	}
	return p, nil
}

// FavoriteIsOn reports whether a favorite document exists and is switched on.
// Anything else, including a non-bool isOn, reads as not favorited.
func FavoriteIsOn(doc *docstore.Document) bool {
	if doc == nil || !doc.Exists {
		return false
	}
	on, ok := doc.Data["isOn"].(bool)
	return ok && on
}
