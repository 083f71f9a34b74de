package ctxutil

import "context"

type visitorDataKey struct{}

// VisitorData identifies the authenticated gallery visitor behind a request.
type VisitorData struct {
	UserID       string
	SessionID    string
	GalleryID    string
	CollectionID string
}

func WithVisitorData(ctx context.Context, vd *VisitorData) context.Context {
	return context.WithValue(ctx, visitorDataKey{}, vd)
}

func GetVisitorData(ctx context.Context) *VisitorData {
	if vd, ok := ctx.Value(visitorDataKey{}).(*VisitorData); ok {
		return vd
	}
	return nil
}
