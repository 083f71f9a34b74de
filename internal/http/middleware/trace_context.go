package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/gallery-client/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
	// HeaderGallerySession echoes the analytics session a request ran under.
	HeaderGallerySession = "X-Gallery-Session"
)

// SessionLookup reports the visitor's current analytics session, if any.
type SessionLookup func() (sessionID string, ok bool)

// AttachTraceContext stamps request, trace and gallery session ids onto the
// request context, the response headers and the active span. sessions may be nil.
func AttachTraceContext(sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		span := trace.SpanFromContext(c.Request.Context())
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" && span.SpanContext().HasTraceID() {
			traceID = span.SpanContext().TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		td := &ctxutil.TraceData{TraceID: traceID, RequestID: reqID}
		if sessions != nil {
			if sid, ok := sessions(); ok && sid != "" {
				td.SessionID = sid
				span.SetAttributes(attribute.String("gallery.session_id", sid))
				c.Writer.Header().Set(HeaderGallerySession, sid)
			}
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}
