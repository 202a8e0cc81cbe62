package handler_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Baaaki/resource-hub/internal/audit"
	"github.com/Baaaki/resource-hub/internal/events"
	"github.com/Baaaki/resource-hub/internal/handler"
	"github.com/Baaaki/resource-hub/internal/middleware"
	"github.com/Baaaki/resource-hub/internal/repository"
	"github.com/Baaaki/resource-hub/internal/router"
	"github.com/Baaaki/resource-hub/internal/service"
	"github.com/Baaaki/resource-hub/internal/testutil"
	"github.com/gin-gonic/gin"
)

// testApp is the full HTTP stack over in-memory SQLite and, optionally, miniredis
type testApp struct {
	testDB  *testutil.TestDatabase
	redis   *testutil.TestRedis
	journal *audit.Journal
	engine  *gin.Engine
	events  *handler.EventsHandler
}

type appOptions struct {
	withRedis       bool
	sessionLifetime time.Duration
}

func newTestApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app := &testApp{testDB: testutil.SetupTestDatabase(t)}

	journal, err := audit.Open(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("Failed to open audit journal: %v", err)
	}
	app.journal = journal

	var (
		publisher   events.Publisher = events.NopPublisher{}
		rateLimiter *middleware.RateLimiter
		broker      *events.RedisBroker
	)
	if opts.withRedis {
		app.redis = testutil.SetupTestRedis(t)
		broker = events.NewRedisBroker(app.redis.Client, events.DefaultChannel)
		publisher = broker
		rateLimiter = middleware.NewRateLimiter(app.redis.Client, middleware.RateLimiterConfig{
			MaxRequests: 10000,
			Window:      time.Minute,
			BlockTime:   time.Minute,
		})
	}

	userRepo := repository.NewUserRepository(app.testDB.DB)
	resourceRepo := repository.NewResourceRepository(app.testDB.DB)
	authService := service.NewAuthService(userRepo, testutil.TestJWTSecret, time.Hour, "development")
	resourceService := service.NewResourceService(resourceRepo, journal, publisher)

	if broker != nil {
		lifetime := opts.sessionLifetime
		if lifetime == 0 {
			lifetime = time.Minute
		}
		app.events = handler.NewEventsHandlerWithLifetime(resourceService, broker, lifetime)
	}

	engine, err := router.New(router.Deps{
		JWTSecret:      testutil.TestJWTSecret,
		AllowedOrigins: []string{"http://localhost:3000"},
		Users:          authService,
		RateLimiter:    rateLimiter,
		Auth:           handler.NewAuthHandler(authService),
		Resources:      handler.NewResourceHandler(resourceService),
		Admin:          handler.NewAdminHandler(authService, journal, rateLimiter),
		Events:         app.events,
	})
	if err != nil {
		t.Fatalf("Failed to build router: %v", err)
	}
	app.engine = engine

	return app
}

func (a *testApp) Close(t *testing.T) {
	a.journal.Close()
	if a.redis != nil {
		a.redis.Teardown(t)
	}
	a.testDB.Teardown(t)
}
