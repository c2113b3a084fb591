// Package inspect serves a read-only HTTP view over persisted sessions so that
// runs can be replayed and debugged after the fact.
package inspect

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hupe1980/agentstack/core"
	"github.com/hupe1980/agentstack/logging"
)

// Options configures New.
type Options struct {
	// Logger receives one entry per request.
	Logger logging.Logger
	// AllowOrigins enables CORS for browser dashboards when non-empty.
	AllowOrigins []string
	// JWTSecret, when set, requires an HS256 bearer token on /v1 routes.
	JWTSecret []byte
	// Fresh drops the storage identity cache before every request so that a
	// server watching a live store never serves stale graphs.
	Fresh bool
}

// New returns a gin engine serving the inspection routes over st.
func New(st *core.Storage, optFns ...func(o *Options)) *gin.Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	g := gin.New()
	g.Use(requestLogger(opts.Logger), gin.Recovery())

	if len(opts.AllowOrigins) > 0 {
		g.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
		}))
	}

	attachRoutes(g, st, opts)

	return g
}

func attachRoutes(g *gin.Engine, st *core.Storage, opts Options) {
	h := handlers{st: st, logger: opts.Logger}

	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := g.Group("/v1")
	if len(opts.JWTSecret) > 0 {
		v1.Use(jwtAuth(opts.JWTSecret))
	}

	if opts.Fresh {
		v1.Use(func(c *gin.Context) {
			st.Forget()
			c.Next()
		})
	}

	{
		v1.GET("/sessions", h.ListSessions)
		v1.GET("/sessions/:id", h.GetSession)
		v1.GET("/agents/:id", h.GetAgent)
		v1.GET("/agents/:id/branches/:branch/interactions", h.BranchInteractions)
		v1.GET("/interactions/:id", h.GetInteraction)
		v1.GET("/artifacts/:id", h.GetArtifact)
		v1.GET("/artifacts/:id/content", h.ArtifactContent)
	}
}
