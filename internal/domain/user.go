package domain

import "time"

// GalleryUser is the visitor identity returned by access-code login.
type GalleryUser struct {
	UserID           string     `json:"userId"`
	DisplayName      string     `json:"displayName"`
	FirstName        string     `json:"firstName,omitempty"`
	LastName         string     `json:"lastName,omitempty"`
	CollectionID     string     `json:"collectionId"`
	CollectionName   string     `json:"collectionName,omitempty"`
	HideTitles       bool       `json:"hideTitles"`
	CodeValue        string     `json:"codeValue"`
	Active           bool       `json:"active"`
	UserEmail        string     `json:"userEmail,omitempty"`
	DateCreatedUTC   *time.Time `json:"dateCreatedUTC,omitempty"`
	LastLoginTimeUTC time.Time  `json:"lastLoginTimeUTC"`
}

// SessionRecord is what survives a restart so the visitor need not log in again.
type SessionRecord struct {
	User      *GalleryUser `json:"user"`
	SessionID string       `json:"sessionId"`
	GalleryID string       `json:"galleryId"`
}

func (r *SessionRecord) Valid() bool {
	return r != nil && r.User != nil && r.User.UserID != "" && r.SessionID != "" && r.GalleryID != ""
}
