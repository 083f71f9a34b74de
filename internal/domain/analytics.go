package domain

import "time"

type EventType string

const (
	EventView            EventType = "view"
	EventZoom            EventType = "zoom"
	EventZoomIn          EventType = "zoom_in"
	EventZoomOut         EventType = "zoom_out"
	EventFavorite        EventType = "favorite"
	EventUnfavorite      EventType = "unfavorite"
	EventReadDescription EventType = "read_description"
)

func (t EventType) Valid() bool {
	switch t {
	case EventView, EventZoom, EventZoomIn, EventZoomOut, EventFavorite, EventUnfavorite, EventReadDescription:
		return true
	default:
		return false
	}
}

func (t EventType) IsZoom() bool {
	return t == EventZoom || t == EventZoomIn || t == EventZoomOut
}

func (t EventType) IsFavoriteToggle() bool {
	return t == EventFavorite || t == EventUnfavorite
}

// DeviceInfo is captured once per session.
type DeviceInfo struct {
	DeviceType       string `json:"deviceType" yaml:"device_type"`
	Browser          string `json:"browser" yaml:"browser"`
	OperatingSystem  string `json:"os" yaml:"os"`
	ScreenResolution string `json:"screenResolution" yaml:"screen_resolution"`
}

// Session document field names.
const (
	SessionFieldUserID          = "userId"
	SessionFieldSessionID       = "sessionId"
	SessionFieldStartTime       = "startTime"
	SessionFieldLastActivity    = "lastActivity"
	SessionFieldEndTime         = "endTime"
	SessionFieldDurationSeconds = "durationSeconds"
	SessionFieldAccessCode      = "accessCode"
)

// ViewingEvent is an append-only interaction record.
type ViewingEvent struct {
	EventID      string    `json:"event_id"`
	GalleryID    string    `json:"gallery_id"`
	UserID       string    `json:"user_id"`
	CollectionID string    `json:"collection_id"`
	PieceID      string    `json:"piece_id"`
	EventType    EventType `json:"event_type"`
	SessionID    string    `json:"session_id"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// Fields renders the event as document fields.
func (e *ViewingEvent) Fields() map[string]any {
	return map[string]any{
		"event_id":      e.EventID,
		"gallery_id":    e.GalleryID,
		"user_id":       e.UserID,
		"collection_id": e.CollectionID,
		"piece_id":      e.PieceID,
		"event_type":    string(e.EventType),
		"session_id":    e.SessionID,
		"duration_ms":   e.DurationMs,
		"timestamp":     FormatTime(e.Timestamp),
	}
}

// FavoriteRecord is one (user, piece) favorite flag.
type FavoriteRecord struct {
	UserID              string    `json:"userId"`
	PieceID             string    `json:"pieceId"`
	IsOn                bool      `json:"isOn"`
	ModifiedDateTimeUTC time.Time `json:"modifiedDateTime"`
}

func (f *FavoriteRecord) Fields() map[string]any {
	return map[string]any{
		"userId":           f.UserID,
		"pieceId":          f.PieceID,
		"isOn":             f.IsOn,
		"modifiedDateTime": FormatTime(f.ModifiedDateTimeUTC),
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime is the UTC timestamp format stored in every analytics document.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime reads a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, bool) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
