package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gallery-client/internal/domain"
)

var errNotLoggedIn = errors.New("not logged in")

// visitor returns the record attached by the visitor middleware.
func visitor(c *gin.Context) *domain.SessionRecord {
	v, ok := c.Get("visitor")
	if !ok {
		return nil
	}
	rec, _ := v.(*domain.SessionRecord)
	return rec
}

func collectionID(rec *domain.SessionRecord) string {
	if rec == nil || rec.User == nil {
		return ""
	}
	return rec.User.CollectionID
}
