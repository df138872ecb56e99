package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vykazy/timesheet-client/internal/core/domain"
	"github.com/vykazy/timesheet-client/internal/core/ports"
)

// stubREST delegates to a test-provided handler.
type stubREST struct {
	mu    sync.Mutex
	calls []string
	fn    func(method, path string) (ports.Payload, error)
}

func (s *stubREST) Do(_ context.Context, method, path string, _ any) (ports.Payload, error) {
	s.mu.Lock()
	s.calls = append(s.calls, method+" "+path)
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return ports.Payload{Kind: ports.PayloadJSON, JSON: []byte("{}")}, nil
	}
	return fn(method, path)
}

type nopPub struct{}

func (nopPub) Publish(string, any) {}

func jsonPayload(t *testing.T, v any) ports.Payload {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return ports.Payload{Kind: ports.PayloadJSON, JSON: raw}
}

func usersPage(t *testing.T, ids []int, meta domain.PageMeta) ports.Payload {
	t.Helper()
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, domain.User{ID: id, Name: fmt.Sprintf("user-%d", id), Active: true})
	}
	return jsonPayload(t, map[string]any{"data": users, "meta": meta})
}

func queryOf(t *testing.T, path string) url.Values {
	t.Helper()
	u, err := url.Parse(path)
	if err != nil {
		t.Fatalf("parse path %q: %v", path, err)
	}
	return u.Query()
}

func TestFetchPage_StaleRequestLosesToNewerFetch(t *testing.T) {
	release := make(chan struct{})
	var calls int32

	rest := &stubREST{}
	rest.fn = func(_, path string) (ports.Payload, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Fetch A: hold the response until B has been applied.
			<-release
			return usersPage(t, []int{1}, domain.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 10, Total: 1}), nil
		}
		return usersPage(t, []int{2}, domain.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 10, Total: 1}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- store.FetchPage(ctx, ports.ListUsersInput{Page: 1})
	}()

	// Wait until A is in flight so its sequence token predates B's.
	for atomic.LoadInt32(&calls) == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := store.FetchPage(ctx, ports.ListUsersInput{Page: 1}); err != nil {
		t.Fatalf("fetch B failed: %v", err)
	}

	close(release)
	errA := <-done
	if !errors.Is(errA, domain.ErrSuperseded) {
		t.Fatalf("expected fetch A to report supersession, got %v", errA)
	}

	snap := store.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].ID != 2 {
		t.Fatalf("collection must reflect fetch B, got %+v", snap.Items)
	}
	if snap.Loading {
		t.Fatalf("superseded fetch must not leave the snapshot loading")
	}
}

func TestFetchPage_StaleTokenNeverFlipsLoading(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(_, _ string) (ports.Payload, error) {
		return usersPage(t, []int{1}, domain.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 10, Total: 1}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	if err := store.FetchPage(context.Background(), ports.ListUsersInput{Page: 1}); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	// A fetch whose token was already overtaken before it could start must
	// refuse to run rather than mark the settled snapshot as loading.
	if store.begin(store.seq.Load() - 1) {
		t.Fatalf("expected begin to refuse an overtaken token")
	}
	if snap := store.Snapshot(); snap.Loading {
		t.Fatalf("overtaken fetch must leave the loading flag untouched, got %+v", snap)
	}
}

func TestFetchPage_FetchAllDrainsEveryPage(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(_, path string) (ports.Payload, error) {
		q := queryOf(t, path)
		page := 1
		fmt.Sscanf(q.Get("page"), "%d", &page)

		ids := make([]int, 10)
		for i := range ids {
			ids[i] = (page-1)*10 + i + 1
		}
		return usersPage(t, ids, domain.PageMeta{CurrentPage: page, LastPage: 3, PerPage: 10, Total: 30}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	if err := store.FetchPage(context.Background(), ports.ListUsersInput{Page: 1, PerPage: 10, FetchAll: true}); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	snap := store.Snapshot()
	if len(snap.Items) != 30 {
		t.Fatalf("expected 30 accumulated users, got %d", len(snap.Items))
	}
	want := domain.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 30, Total: 30}
	if snap.Meta != want {
		t.Fatalf("expected synthetic meta %+v, got %+v", want, snap.Meta)
	}
}

func TestFetchPage_SinglePageStoresMetaVerbatim(t *testing.T) {
	meta := domain.PageMeta{CurrentPage: 2, LastPage: 5, PerPage: 10, Total: 47}
	rest := &stubREST{}
	rest.fn = func(_, path string) (ports.Payload, error) {
		return usersPage(t, []int{11, 12}, meta), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	if err := store.FetchPage(context.Background(), ports.ListUsersInput{Page: 2, PerPage: 10}); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	snap := store.Snapshot()
	if snap.Meta != meta {
		t.Fatalf("expected verbatim meta %+v, got %+v", meta, snap.Meta)
	}
	if snap.Loading {
		t.Fatalf("loading flag must be cleared")
	}
}

func TestFetchPage_AlwaysAppliesActiveFilter(t *testing.T) {
	rest := &stubREST{}
	var gotQuery url.Values
	rest.fn = func(_, path string) (ports.Payload, error) {
		gotQuery = queryOf(t, path)
		return usersPage(t, nil, domain.PageMeta{CurrentPage: 1, LastPage: 1}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	in := ports.ListUsersInput{Filters: map[string]string{"search": "nov", "active": "false"}, Sort: "name"}
	if err := store.FetchPage(context.Background(), in); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if gotQuery.Get("active") != "true" {
		t.Fatalf("active=true must override caller filters, got %q", gotQuery.Get("active"))
	}
	if gotQuery.Get("search") != "nov" || gotQuery.Get("sort") != "name" {
		t.Fatalf("caller filters must pass through: %v", gotQuery)
	}
}

func TestFetchPage_FlattensServerFieldErrors(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(_, _ string) (ports.Payload, error) {
		return ports.Payload{}, &domain.HTTPError{
			Status:  422,
			Message: "The given data was invalid.",
			FieldErrors: map[string][]string{
				"page":     {"page must be a positive integer"},
				"per_page": {"per_page is too large"},
			},
		}
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	err := store.FetchPage(context.Background(), ports.ListUsersInput{})
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "page must be a positive integer") || !strings.Contains(msg, "per_page is too large") {
		t.Fatalf("expected joined field errors, got %q", msg)
	}
	var httpErr *domain.HTTPError
	if errors.As(err, &httpErr) {
		t.Fatalf("field errors must be flattened to a plain message, got %T", err)
	}
}

func TestFetchPage_ErrorRecordedInSnapshot(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(_, _ string) (ports.Payload, error) {
		return ports.Payload{}, &domain.HTTPError{Status: 500, Message: "boom"}
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	if err := store.FetchPage(context.Background(), ports.ListUsersInput{}); err == nil {
		t.Fatalf("expected error")
	}
	snap := store.Snapshot()
	if snap.Err == nil || snap.Loading {
		t.Fatalf("expected recorded error with loading cleared, got %+v", snap)
	}
}

func TestCreate_AppendsExactlyOneEntity(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(method, path string) (ports.Payload, error) {
		if method == "POST" {
			return jsonPayload(t, domain.User{ID: 9, Name: "Cyril", Active: true}), nil
		}
		return usersPage(t, []int{1, 2}, domain.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 10, Total: 2}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	ctx := context.Background()
	if err := store.FetchPage(ctx, ports.ListUsersInput{}); err != nil {
		t.Fatalf("seed fetch failed: %v", err)
	}

	created, err := store.Create(ctx, ports.CreateUserInput{
		Name: "Cyril", Email: "cyril@example.com", RoleID: 3, JobTitleID: 1,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID != 9 {
		t.Fatalf("unexpected created entity: %+v", created)
	}

	snap := store.Snapshot()
	if len(snap.Items) != 3 {
		t.Fatalf("expected exactly one appended entity, got %d items", len(snap.Items))
	}
}

func TestCreate_LocalValidationShortCircuits(t *testing.T) {
	rest := &stubREST{}
	store := NewUsers(rest, nopPub{}, zerolog.Nop())

	_, err := store.Create(context.Background(), ports.CreateUserInput{Email: "not-an-email"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("expected joined validation message, got %q", err.Error())
	}
	if len(rest.calls) != 0 {
		t.Fatalf("invalid payload must not reach the network, calls: %v", rest.calls)
	}
}

func TestUpdate_ReplacesMatchingEntityOnly(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(method, path string) (ports.Payload, error) {
		if method == "PUT" {
			return jsonPayload(t, domain.User{ID: 2, Name: "renamed", Active: true}), nil
		}
		return usersPage(t, []int{1, 2, 3}, domain.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 10, Total: 3}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	ctx := context.Background()
	if err := store.FetchPage(ctx, ports.ListUsersInput{}); err != nil {
		t.Fatalf("seed fetch failed: %v", err)
	}

	name := "renamed"
	if _, err := store.Update(ctx, 2, ports.UpdateUserInput{Name: &name}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap := store.Snapshot()
	if len(snap.Items) != 3 {
		t.Fatalf("update must not change collection size, got %d", len(snap.Items))
	}
	for _, u := range snap.Items {
		switch u.ID {
		case 2:
			if u.Name != "renamed" {
				t.Fatalf("expected replaced entity, got %+v", u)
			}
		default:
			if u.Name != fmt.Sprintf("user-%d", u.ID) {
				t.Fatalf("other entities must be untouched: %+v", u)
			}
		}
	}
}

func TestUpdate_AppendsWhenEntityAbsent(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(method, _ string) (ports.Payload, error) {
		return jsonPayload(t, domain.User{ID: 42, Name: "late", Active: true}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	if _, err := store.Update(context.Background(), 42, ports.UpdateUserInput{}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	snap := store.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].ID != 42 {
		t.Fatalf("expected appended entity, got %+v", snap.Items)
	}
}

func TestRemove_DropsEntityByID(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(method, path string) (ports.Payload, error) {
		if method == "DELETE" {
			return ports.Payload{Kind: ports.PayloadJSON, JSON: []byte("{}")}, nil
		}
		return usersPage(t, []int{1, 2, 3}, domain.PageMeta{CurrentPage: 1, LastPage: 1, PerPage: 10, Total: 3}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	ctx := context.Background()
	if err := store.FetchPage(ctx, ports.ListUsersInput{}); err != nil {
		t.Fatalf("seed fetch failed: %v", err)
	}

	if err := store.Remove(ctx, 2); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	snap := store.Snapshot()
	if len(snap.Items) != 2 {
		t.Fatalf("expected 2 remaining users, got %d", len(snap.Items))
	}
	for _, u := range snap.Items {
		if u.ID == 2 {
			t.Fatalf("entity 2 must be gone: %+v", snap.Items)
		}
	}
}

func TestSupervisors(t *testing.T) {
	rest := &stubREST{}
	rest.fn = func(_, path string) (ports.Payload, error) {
		if !strings.HasSuffix(path, "/supervisors") {
			t.Fatalf("unexpected path %q", path)
		}
		return jsonPayload(t, map[string]any{"data": []domain.Supervisor{{ID: 1, Name: "Alice"}}}), nil
	}

	store := NewUsers(rest, nopPub{}, zerolog.Nop())
	sups, err := store.Supervisors(context.Background())
	if err != nil {
		t.Fatalf("Supervisors failed: %v", err)
	}
	if len(sups) != 1 || sups[0].Name != "Alice" {
		t.Fatalf("unexpected supervisors: %+v", sups)
	}
}
