package devserver

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vykazy/timesheet-client/internal/core/domain"
)

// errEnvelope matches the real API's error payload: message and/or a
// per-field error map.
type errEnvelope struct {
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// listEnvelope matches the real API's list payload.
type listEnvelope struct {
	Data any             `json:"data"`
	Meta domain.PageMeta `json:"meta"`
}

// paginate slices items down to the requested page.
func paginate[T any](items []T, page, perPage int) ([]T, domain.PageMeta) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}
	total := len(items)
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return items[start:end], domain.PageMeta{
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     perPage,
		Total:       total,
	}
}

func pageParams(c echo.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	perPage, _ = strconv.Atoi(c.QueryParam("per_page"))
	return page, perPage
}

// ── Auth ──────────────────────────────────────────────────────────────────────

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "invalid payload"})
	}

	s.mu.Lock()
	rec, ok := s.findByEmail(req.Email)
	s.mu.Unlock()
	if !ok || bcryptCompare(rec.PasswordHash, req.Password) != nil {
		s.log.Debug().Str("email", req.Email).Msg("stub login rejected")
		return c.JSON(http.StatusUnauthorized, errEnvelope{Message: "invalid credentials"})
	}

	if err := s.issueSession(c, rec.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type externalLoginRequest struct {
	Code string `json:"code"`
}

// externalLogin exchanges an authorization code for a session. The stub
// accepts any non-empty code and signs in the seeded employee.
func (s *Server) externalLogin(c echo.Context) error {
	var req externalLoginRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "missing authorization code"})
	}
	if err := s.issueSession(c, 2); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type linkRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (s *Server) linkAccount(c echo.Context) error {
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "invalid payload"})
	}
	if req.Code == "" || req.State == "" {
		return c.JSON(http.StatusUnprocessableEntity, errEnvelope{
			Message: "The given data was invalid.",
			Errors:  map[string][]string{"code": {"code and state are required"}},
		})
	}

	id := c.Get("user_id").(int)
	external := "ext-" + req.Code

	s.mu.Lock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].ExternalAccountID = external
		}
	}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]string{"external_account_id": external})
}

func (s *Server) unlinkAccount(c echo.Context) error {
	id := c.Get("user_id").(int)
	s.mu.Lock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].ExternalAccountID = ""
		}
	}
	s.mu.Unlock()
	return c.NoContent(http.StatusNoContent)
}

// ── Users ─────────────────────────────────────────────────────────────────────

func (s *Server) me(c echo.Context) error {
	id := c.Get("user_id").(int)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		if rec.ID == id {
			return c.JSON(http.StatusOK, principalOf(rec))
		}
	}
	return c.JSON(http.StatusUnauthorized, errEnvelope{Message: "unauthenticated"})
}

func principalOf(rec userRecord) domain.Principal {
	return domain.Principal{
		ID:                rec.ID,
		Name:              rec.Name,
		Email:             rec.Email,
		Role:              rec.Role,
		JobTitle:          rec.JobTitle,
		Supervisor:        rec.Supervisor,
		AutoApproved:      rec.AutoApproved,
		ExternalAccountID: rec.ExternalAccountID,
	}
}

func (s *Server) listUsers(c echo.Context) error {
	page, perPage := pageParams(c)
	activeOnly := c.QueryParam("active") == "true"

	s.mu.Lock()
	filtered := make([]domain.User, 0, len(s.users))
	for _, rec := range s.users {
		if activeOnly && !rec.Active {
			continue
		}
		filtered = append(filtered, rec.User)
	}
	s.mu.Unlock()

	if c.QueryParam("sort") == "name" {
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
	}

	items, meta := paginate(filtered, page, perPage)
	return c.JSON(http.StatusOK, listEnvelope{Data: items, Meta: meta})
}

type createUserRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	RoleID       int    `json:"role_id" validate:"required,gt=0"`
	JobTitleID   int    `json:"job_title_id" validate:"required,gt=0"`
	SupervisorID int    `json:"supervisor_id"`
	AutoApproved bool   `json:"auto_approved"`
}

func (s *Server) createUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		var ve *validationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusUnprocessableEntity, errEnvelope{
				Message: "The given data was invalid.",
				Errors:  ve.Fields,
			})
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := domain.User{
		ID:           s.nextID,
		Name:         req.Name,
		Email:        req.Email,
		Role:         s.roleByID(req.RoleID),
		JobTitle:     s.titleByID(req.JobTitleID),
		AutoApproved: req.AutoApproved,
		Active:       true,
	}
	if req.SupervisorID > 0 {
		if sup, ok := s.findByID(req.SupervisorID); ok {
			user.Supervisor = &domain.SupervisorRef{ID: sup.ID, Name: sup.Name}
		}
	}
	s.nextID++
	s.users = append(s.users, userRecord{User: user})

	return c.JSON(http.StatusCreated, user)
}

type updateUserRequest struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	RoleID       *int    `json:"role_id"`
	JobTitleID   *int    `json:"job_title_id"`
	SupervisorID *int    `json:"supervisor_id"`
	AutoApproved *bool   `json:"auto_approved"`
	Active       *bool   `json:"active"`
}

func (s *Server) updateUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "invalid id"})
	}
	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "invalid payload"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID != id {
			continue
		}
		u := &s.users[i].User
		if req.Name != nil {
			u.Name = *req.Name
		}
		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.RoleID != nil {
			u.Role = s.roleByID(*req.RoleID)
		}
		if req.JobTitleID != nil {
			u.JobTitle = s.titleByID(*req.JobTitleID)
		}
		if req.SupervisorID != nil {
			if sup, ok := s.findByID(*req.SupervisorID); ok {
				u.Supervisor = &domain.SupervisorRef{ID: sup.ID, Name: sup.Name}
			}
		}
		if req.AutoApproved != nil {
			u.AutoApproved = *req.AutoApproved
		}
		if req.Active != nil {
			u.Active = *req.Active
		}
		return c.JSON(http.StatusOK, *u)
	}
	return c.JSON(http.StatusNotFound, errEnvelope{Message: "user not found"})
}

func (s *Server) getUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "invalid id"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.findByID(id); ok {
		return c.JSON(http.StatusOK, rec.User)
	}
	return c.JSON(http.StatusNotFound, errEnvelope{Message: "user not found"})
}

func (s *Server) deleteUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "invalid id"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return c.NoContent(http.StatusNoContent)
		}
	}
	return c.JSON(http.StatusNotFound, errEnvelope{Message: "user not found"})
}

func (s *Server) supervisors(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sups := make([]domain.Supervisor, 0)
	for _, rec := range s.users {
		if rec.Role.ID <= 2 && rec.Active {
			sups = append(sups, domain.Supervisor{ID: rec.ID, Name: rec.Name})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"data": sups})
}

// ── Tasks & clients ───────────────────────────────────────────────────────────

func (s *Server) listTasks(c echo.Context) error {
	page, perPage := pageParams(c)
	activeOnly := c.QueryParam("active") == "true"

	s.mu.Lock()
	filtered := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if activeOnly && !t.Active {
			continue
		}
		filtered = append(filtered, t)
	}
	s.mu.Unlock()

	items, meta := paginate(filtered, page, perPage)
	return c.JSON(http.StatusOK, listEnvelope{Data: items, Meta: meta})
}

func (s *Server) getTask(c echo.Context) error {
	code := c.Param("code")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Code == code {
			return c.JSON(http.StatusOK, t)
		}
	}
	return c.JSON(http.StatusNotFound, errEnvelope{Message: "task not found"})
}

func (s *Server) taskSubtypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"data": []domain.TaskSubtype{
		{ID: 1, Name: "development"},
		{ID: 2, Name: "support"},
		{ID: 3, Name: "analysis"},
	}})
}

func (s *Server) listClients(c echo.Context) error {
	page, perPage := pageParams(c)
	s.mu.Lock()
	all := append([]domain.Client(nil), s.clients...)
	s.mu.Unlock()
	items, meta := paginate(all, page, perPage)
	return c.JSON(http.StatusOK, listEnvelope{Data: items, Meta: meta})
}

func (s *Server) getClient(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errEnvelope{Message: "invalid id"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cl := range s.clients {
		if cl.ID == id {
			return c.JSON(http.StatusOK, cl)
		}
	}
	return c.JSON(http.StatusNotFound, errEnvelope{Message: "client not found"})
}

// ── Reference data ────────────────────────────────────────────────────────────

func (s *Server) listRoles(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"data": s.roles})
}

func (s *Server) listJobTitles(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"data": s.titles})
}

// ── Fixture helpers ───────────────────────────────────────────────────────────

func (s *Server) findByEmail(email string) (userRecord, bool) {
	for _, rec := range s.users {
		if rec.Email == email {
			return rec, true
		}
	}
	return userRecord{}, false
}

func (s *Server) findByID(id int) (userRecord, bool) {
	for _, rec := range s.users {
		if rec.ID == id {
			return rec, true
		}
	}
	return userRecord{}, false
}

func (s *Server) roleByID(id int) domain.Role {
	for _, r := range s.roles {
		if r.ID == id {
			return domain.Role{ID: r.ID, Name: r.Name}
		}
	}
	return domain.Role{ID: id}
}

func (s *Server) titleByID(id int) domain.JobTitle {
	for _, t := range s.titles {
		if t.ID == id {
			return domain.JobTitle{ID: t.ID, Name: t.Name}
		}
	}
	return domain.JobTitle{ID: id}
}
