package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// ResponseCache caches successful GET responses for a short TTL. It only
// serves routes the router explicitly lists (the write-once role and profile
// lookups), and entries are keyed per caller so a cached response is never
// replayed to an identity the guards have not cleared.
type ResponseCache struct {
	store  *cache.Cache
	routes map[string]struct{}
}

// NewResponseCache builds a cache limited to the given route patterns, as
// reported by gin's FullPath (e.g. "/api/v1/registry/roles/:address").
func NewResponseCache(ttl time.Duration, routes ...string) *ResponseCache {
	set := make(map[string]struct{}, len(routes))
	for _, route := range routes {
		set[route] = struct{}{}
	}
	return &ResponseCache{
		store:  cache.New(ttl, 2*ttl),
		routes: set,
	}
}

func (rc *ResponseCache) Cache() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		if _, ok := rc.routes[c.FullPath()]; !ok {
			c.Next()
			return
		}
		caller, ok := CallerIdentity(c)
		if !ok {
			c.Next()
			return
		}

		key := caller.String() + " " + c.Request.URL.RequestURI()
		if cached, ok := rc.store.Get(key); ok {
			resp := cached.(cachedResponse)
			c.Data(resp.status, resp.contentType, resp.body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = recorder
		c.Next()

		if c.Writer.Status() == http.StatusOK {
			rc.store.SetDefault(key, cachedResponse{
				status:      c.Writer.Status(),
				contentType: c.Writer.Header().Get("Content-Type"),
				body:        recorder.body.Bytes(),
			})
		}
	}
}
