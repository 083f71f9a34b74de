package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/gallery-client/internal/platform/ctxutil"
	"github.com/yungbote/gallery-client/internal/platform/logger"
	"github.com/yungbote/gallery-client/internal/services"
)

const visitorKey = "visitor"

type VisitorMiddleware struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewVisitorMiddleware(log *logger.Logger, auth services.AuthService) *VisitorMiddleware {
	return &VisitorMiddleware{log: log.With("middleware", "VisitorMiddleware"), auth: auth}
}

// RequireVisitor rejects requests until a visitor has logged in, and attaches
// the visitor's ids to the request context.
func (m *VisitorMiddleware) RequireVisitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := m.auth.Current()
		if !ok || rec.User == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "not logged in", "code": "unauthorized"},
			})
			return
		}
		ctx := ctxutil.WithVisitorData(c.Request.Context(), &ctxutil.VisitorData{
			UserID:       rec.User.UserID,
			SessionID:    rec.SessionID,
			GalleryID:    rec.GalleryID,
			CollectionID: rec.User.CollectionID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set(visitorKey, rec)
		c.Next()
	}
}
