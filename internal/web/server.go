// Package web is the HTTP host: it renders the booking grid as a page,
// exposes the toggle and navigation API, and serves the echo endpoint that
// booking notifications default to.
package web

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"golang.org/x/time/rate"

	"bookcal/internal/action"
	"bookcal/internal/booking"
	"bookcal/internal/config"
	appLog "bookcal/internal/log"
)

// Server owns the gin engine and the collaborators its handlers drive.
type Server struct {
	cfg     *config.Config
	sched   *booking.Scheduler
	logger  appLog.Logger
	engine  *gin.Engine
	limiter *ipLimiter
}

// Option customizes a Server.
type Option func(*Server)

// WithScheduler mounts the booking calendar. Without one the calendar
// routes answer 404.
func WithScheduler(s *booking.Scheduler) Option {
	return func(srv *Server) { srv.sched = s }
}

// WithLogger injects a logger.
func WithLogger(l appLog.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

// NewServer constructs a Server and registers its routes.
func NewServer(cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:    cfg,
		logger: appLog.Named("web"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.limiter = newIPLimiter(cfg.RateLimitPerMin)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	if mw := corsMiddleware(cfg.AllowedOrigins); mw != nil {
		s.engine.Use(mw)
	}
	s.registerRoutes()
	return s
}

// corsMiddleware admits the configured origins only. With none configured
// no CORS headers are sent and browsers keep the API same-origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// recordingDispatcher runs actions for one client request. Host, store and
// HTTP effects are all recorded for the client to replay against its own
// page, storage and origin; nothing touches server state.
func (s *Server) recordingDispatcher(rec *action.Recorder) *action.Dispatcher {
	return action.New(rec,
		action.WithStore(rec),
		action.WithInvoker(rec),
		action.WithLogger(s.logger),
	)
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	// /health is always reachable without credentials.
	s.engine.GET("/health", s.handleHealth)

	root := s.engine.Group("/")
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		root.Use(basicAuth(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password))
	}

	root.GET("/calendar", s.requireScheduler, s.handleCalendarPage)
	root.GET("/calendar.ics", s.requireScheduler, s.handleICS)
	root.GET("/preview.png", s.handlePreview)

	api := root.Group("/api", s.rateLimit)
	{
		api.GET("/calendar", s.requireScheduler, s.handleCalendarJSON)
		api.POST("/calendar/toggle", requireJSON, s.requireScheduler, s.handleToggle)
		api.POST("/dispatch", requireJSON, s.handleDispatch)
		api.Any("/echo", s.handleEcho)
		api.GET("/ping", s.handlePing)
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// requireJSON rejects bodies that are not declared as JSON. Browsers cannot
// send that content type cross-origin without a CORS preflight.
func requireJSON(c *gin.Context) {
	if c.ContentType() != binding.MIMEJSON {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be application/json"})
		return
	}
	c.Next()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) requireScheduler(c *gin.Context) {
	if s.sched == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "calendar not mounted"})
		return
	}
	c.Next()
}

func (s *Server) rateLimit(c *gin.Context) {
	ip := c.ClientIP()
	if !s.limiter.get(ip).Allow() {
		s.logger.Infow("rate limit exceeded", "ip", ip)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
		return
	}
	c.Next()
}

// limiterIdleTTL is how long a client's bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

type ipEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client IP. Buckets idle for
// limiterIdleTTL are swept at most once per TTL.
type ipLimiter struct {
	mu        sync.Mutex
	perMin    int
	now       func() time.Time
	lastSweep time.Time
	limiters  map[string]*ipEntry
}

func newIPLimiter(perMin int) *ipLimiter {
	if perMin <= 0 {
		perMin = config.DefaultConfig().RateLimitPerMin
	}
	return &ipLimiter{
		perMin:   perMin,
		now:      time.Now,
		limiters: make(map[string]*ipEntry),
	}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) >= limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[ip]
	if !ok {
		e = &ipEntry{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.lim
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
