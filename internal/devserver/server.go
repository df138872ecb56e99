// Package devserver is an in-memory stub of the time-reporting REST API,
// used by integration-style tests and for local development of the client.
// It implements the same envelopes the real API produces: list responses as
// {data, meta}, errors as {message, errors}.
package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vykazy/timesheet-client/internal/core/domain"
)

const sessionCookie = "timesheet_session"

// userRecord is a stored user plus credentials.
type userRecord struct {
	domain.User
	PasswordHash      string
	ExternalAccountID string
}

// refEntry is one role or job-title row.
type refEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Server holds the fixture state behind the stub endpoints.
type Server struct {
	e         *echo.Echo
	jwtSecret []byte
	log       zerolog.Logger

	mu      sync.Mutex
	users   []userRecord
	nextID  int
	tasks   []domain.Task
	clients []domain.Client
	roles   []refEntry
	titles  []refEntry
}

// New builds a stub server with seeded fixtures. The seeded login is
// alice@example.com / s3cret.
func New(jwtSecret string, log zerolog.Logger) *Server {
	s := &Server{
		jwtSecret: []byte(jwtSecret),
		log:       log,
	}
	s.seed()

	e := echo.New()
	e.HideBanner = true
	e.Validator = newValidator()

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())

	// A private registry keeps repeated stub construction (one per test)
	// from colliding on the default Prometheus registerer.
	reg := prometheus.NewRegistry()
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "timesheet_stub",
		Registerer: reg,
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: reg,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/api/auth/login", s.login)
	e.POST("/api/auth/logout", s.logout)
	e.POST("/api/auth/ms-login", s.externalLogin)

	auth := e.Group("/api", s.requireSession)
	auth.GET("/users/me", s.me)
	auth.GET("/users/supervisors", s.supervisors)
	auth.GET("/users", s.listUsers)
	auth.POST("/users", s.createUser)
	auth.GET("/users/:id", s.getUser)
	auth.PUT("/users/:id", s.updateUser)
	auth.DELETE("/users/:id", s.deleteUser)

	auth.GET("/tasks", s.listTasks)
	auth.GET("/tasks/subtypes", s.taskSubtypes)
	auth.GET("/tasks/:code", s.getTask)

	auth.GET("/clients", s.listClients)
	auth.GET("/clients/:id", s.getClient)

	auth.GET("/roles", s.listRoles)
	auth.GET("/job-titles", s.listJobTitles)

	auth.POST("/auth/ms-link", s.linkAccount)
	auth.DELETE("/auth/ms-link", s.unlinkAccount)

	s.e = e
	return s
}

// Handler exposes the stub as an http.Handler for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) seed() {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)

	s.roles = []refEntry{{1, "Administrator"}, {2, "Supervisor"}, {3, "Employee"}}
	s.titles = []refEntry{{1, "Developer"}, {2, "Tester"}, {3, "Analyst"}, {4, "Manager"}}

	s.users = []userRecord{
		{
			User: domain.User{
				ID: 1, Name: "Alice Adamova", Email: "alice@example.com",
				Role:     domain.Role{ID: 1, Name: "Administrator"},
				JobTitle: domain.JobTitle{ID: 4, Name: "Manager"},
				Active:   true, AutoApproved: true,
			},
			PasswordHash: string(hash),
		},
		{
			User: domain.User{
				ID: 2, Name: "Bohumil Novak", Email: "bohumil@example.com",
				Role:       domain.Role{ID: 3, Name: "Employee"},
				JobTitle:   domain.JobTitle{ID: 1, Name: "Developer"},
				Supervisor: &domain.SupervisorRef{ID: 1, Name: "Alice Adamova"},
				Active:     true,
			},
			PasswordHash: string(hash),
		},
	}
	s.nextID = 3

	s.clients = []domain.Client{
		{ID: 1, Name: "Acme s.r.o.", Active: true},
		{ID: 2, Name: "Brno Metalworks", Active: true},
	}
	s.tasks = []domain.Task{
		{Code: "ACME-DEV", Name: "Acme development", ClientID: 1, Subtype: "development", Active: true},
		{Code: "ACME-SUP", Name: "Acme support", ClientID: 1, Subtype: "support", Active: true},
		{Code: "BMW-MIG", Name: "Metalworks migration", ClientID: 2, Subtype: "development", Active: true},
	}
}

// ── Session plumbing ──────────────────────────────────────────────────────────

func (s *Server) issueSession(c echo.Context, userID int) error {
	claims := jwt.MapClaims{
		"sub": fmt.Sprintf("%d", userID),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	return nil
}

// requireSession resolves the session cookie to a user id stored in the
// echo context under "user_id".
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			return c.JSON(http.StatusUnauthorized, errEnvelope{Message: "unauthenticated"})
		}
		token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (any, error) {
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			return c.JSON(http.StatusUnauthorized, errEnvelope{Message: "unauthenticated"})
		}
		sub, _ := token.Claims.GetSubject()
		var id int
		if _, err := fmt.Sscanf(sub, "%d", &id); err != nil {
			return c.JSON(http.StatusUnauthorized, errEnvelope{Message: "unauthenticated"})
		}
		c.Set("user_id", id)
		return next(c)
	}
}

func bcryptCompare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// ── Validation ────────────────────────────────────────────────────────────────

// echoValidator wraps go-playground/validator so Echo can call
// c.Validate(req). Violations surface as a field-error map matching the real
// API's envelope.
type echoValidator struct {
	v *validator.Validate
}

func newValidator() *echoValidator {
	return &echoValidator{v: validator.New()}
}

func (ev *echoValidator) Validate(i any) error {
	err := ev.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string][]string, len(ve))
		for _, fe := range ve {
			field := strings.ToLower(fe.Field())
			fields[field] = append(fields[field], fmt.Sprintf("%s failed on %s", field, fe.Tag()))
		}
		return &validationError{Fields: fields}
	}
	return err
}

// validationError carries the per-field map through to the handler.
type validationError struct {
	Fields map[string][]string
}

func (e *validationError) Error() string {
	return "validation failed"
}
