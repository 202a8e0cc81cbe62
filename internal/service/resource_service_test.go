package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Baaaki/resource-hub/internal/audit"
	"github.com/Baaaki/resource-hub/internal/events"
	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/internal/repository"
	"github.com/Baaaki/resource-hub/internal/service"
	"github.com/Baaaki/resource-hub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func str(s string) *string { return &s }

type ResourceServiceTestSuite struct {
	suite.Suite
	testDB    *testutil.TestDatabase
	journal   *audit.Journal
	publisher *recordingPublisher
	svc       *service.ResourceService
	ctx       context.Context

	admin, staff, user *models.User
}

func (s *ResourceServiceTestSuite) SetupSuite() {
	s.testDB = testutil.SetupTestDatabase(s.T())
	s.ctx = context.Background()
}

func (s *ResourceServiceTestSuite) TearDownSuite() {
	s.testDB.Teardown(s.T())
}

func (s *ResourceServiceTestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.testDB.DB)
	s.admin, s.staff, s.user = testutil.CreateRoleUsers(s.T(), s.testDB.DB)

	journal, err := audit.Open(filepath.Join(s.T().TempDir(), "audit.log"))
	require.NoError(s.T(), err)
	s.journal = journal
	s.publisher = &recordingPublisher{}
	s.svc = service.NewResourceService(repository.NewResourceRepository(s.testDB.DB), s.journal, s.publisher)
}

func (s *ResourceServiceTestSuite) TearDownTest() {
	s.journal.Close()
}

func callerOf(u *models.User) service.Caller {
	return service.Caller{UserID: u.ID, Role: u.Role}
}

func validInput() service.ResourceInput {
	return service.ResourceInput{
		Name:        str("Test"),
		URL:         str("https://a.com"),
		Description: str("d"),
	}
}

func (s *ResourceServiceTestSuite) TestCreate_StampsOwnerAndTimestamps() {
	before := time.Now().Add(-time.Second)

	resource, err := s.svc.Create(s.ctx, callerOf(s.staff), validInput())
	require.NoError(s.T(), err)

	assert.Equal(s.T(), s.staff.ID, resource.CreatedByID)
	assert.Equal(s.T(), "staff@example.com", resource.CreatedBy.String())
	assert.True(s.T(), resource.CreatedAt.After(before))
	assert.True(s.T(), resource.CreatedAt.Equal(resource.UpdatedAt))
}

func (s *ResourceServiceTestSuite) TestCreate_TrimsFields() {
	resource, err := s.svc.Create(s.ctx, callerOf(s.admin), service.ResourceInput{
		Name:        str("  Padded  "),
		URL:         str(" https://pad.example.com/ "),
		Description: str("\tdesc\n"),
	})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "Padded", resource.Name)
	assert.Equal(s.T(), "https://pad.example.com/", resource.URL)
	assert.Equal(s.T(), "desc", resource.Description)
}

func (s *ResourceServiceTestSuite) TestCreate_DeniedForUserRole() {
	_, err := s.svc.Create(s.ctx, callerOf(s.user), validInput())
	assert.ErrorIs(s.T(), err, service.ErrPermissionDenied)

	// the gate answers before validation
	_, err = s.svc.Create(s.ctx, callerOf(s.user), service.ResourceInput{})
	assert.ErrorIs(s.T(), err, service.ErrPermissionDenied)

	_, err = s.svc.Create(s.ctx, service.Caller{UserID: s.user.ID, Role: "superuser"}, validInput())
	assert.ErrorIs(s.T(), err, service.ErrPermissionDenied)

	assert.Empty(s.T(), s.publisher.Events())
}

func (s *ResourceServiceTestSuite) TestCreate_Validation() {
	long := strings.Repeat("a", models.MaxResourceNameLength+1)
	longURL := "https://example.com/" + strings.Repeat("p", models.MaxResourceURLLength)

	testCases := []struct {
		name  string
		input service.ResourceInput
		want  map[string]string
	}{
		{
			name:  "empty_name",
			input: service.ResourceInput{Name: str(""), URL: str("https://a.com"), Description: str("d")},
			want:  map[string]string{"name": "This field may not be blank."},
		},
		{
			name:  "blank_description",
			input: service.ResourceInput{Name: str("n"), URL: str("https://a.com"), Description: str("   ")},
			want:  map[string]string{"description": "This field may not be blank."},
		},
		{
			name:  "missing_everything",
			input: service.ResourceInput{},
			want: map[string]string{
				"name":        "This field is required.",
				"url":         "This field is required.",
				"description": "This field is required.",
			},
		},
		{
			name:  "name_too_long",
			input: service.ResourceInput{Name: str(long), URL: str("https://a.com"), Description: str("d")},
			want:  map[string]string{"name": "Ensure this field has no more than 200 characters."},
		},
		{
			name:  "url_too_long",
			input: service.ResourceInput{Name: str("n"), URL: str(longURL), Description: str("d")},
			want:  map[string]string{"url": "Ensure this field has no more than 200 characters."},
		},
		{
			name:  "not_a_url",
			input: service.ResourceInput{Name: str("n"), URL: str("not a url"), Description: str("d")},
			want:  map[string]string{"url": "Enter a valid URL."},
		},
		{
			name:  "unsupported_scheme",
			input: service.ResourceInput{Name: str("n"), URL: str("javascript:alert(1)"), Description: str("d")},
			want:  map[string]string{"url": "Enter a valid URL."},
		},
		{
			name:  "no_host",
			input: service.ResourceInput{Name: str("n"), URL: str("https://"), Description: str("d")},
			want:  map[string]string{"url": "Enter a valid URL."},
		},
		{
			name:  "single_label_host",
			input: service.ResourceInput{Name: str("n"), URL: str("https://a"), Description: str("d")},
			want:  map[string]string{"url": "Enter a valid URL."},
		},
		{
			name:  "numeric_tld",
			input: service.ResourceInput{Name: str("n"), URL: str("https://example.123"), Description: str("d")},
			want:  map[string]string{"url": "Enter a valid URL."},
		},
		{
			name:  "empty_label",
			input: service.ResourceInput{Name: str("n"), URL: str("https://a..com"), Description: str("d")},
			want:  map[string]string{"url": "Enter a valid URL."},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.svc.Create(s.ctx, callerOf(s.admin), tc.input)

			var ve *service.ValidationError
			require.True(s.T(), errors.As(err, &ve), "expected validation error, got %v", err)
			assert.Equal(s.T(), tc.want, ve.Fields)
		})
	}

	resources, err := s.svc.List(s.ctx, callerOf(s.admin), "")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), resources)
}

func (s *ResourceServiceTestSuite) TestCreate_AcceptsWebSchemes() {
	for _, raw := range []string{
		"http://a.com",
		"https://a.com/path?q=1",
		"ftp://files.example.com/x",
		"HTTPS://UPPER.EXAMPLE.COM",
		"http://localhost:8000/admin/",
		"http://127.0.0.1/",
		"http://[::1]:8080/",
		"https://xn--bcher-kva.example/",
	} {
		_, err := s.svc.Create(s.ctx, callerOf(s.admin), service.ResourceInput{
			Name: str(raw), URL: str(raw), Description: str("d"),
		})
		assert.NoError(s.T(), err, raw)
	}
}

func (s *ResourceServiceTestSuite) TestGet() {
	created, err := s.svc.Create(s.ctx, callerOf(s.admin), validInput())
	require.NoError(s.T(), err)

	for _, u := range []*models.User{s.admin, s.staff, s.user} {
		got, err := s.svc.Get(s.ctx, callerOf(u), created.ID)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), created.ID, got.ID)

		_, err = s.svc.Get(s.ctx, callerOf(u), 999)
		assert.ErrorIs(s.T(), err, service.ErrResourceNotFound, string(u.Role))
	}
}

func (s *ResourceServiceTestSuite) TestUpdate_KeepsOwnerAndAdvancesUpdatedAt() {
	created, err := s.svc.Create(s.ctx, callerOf(s.staff), validInput())
	require.NoError(s.T(), err)

	updated, err := s.svc.Update(s.ctx, callerOf(s.admin), created.ID, service.ResourceInput{
		Name: str("Renamed"), URL: str("https://b.com"), Description: str("new"),
	}, false)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "Renamed", updated.Name)
	assert.Equal(s.T(), s.staff.ID, updated.CreatedByID, "owner stays with the creator")
	assert.True(s.T(), created.CreatedAt.Equal(updated.CreatedAt))
	assert.True(s.T(), updated.UpdatedAt.After(created.UpdatedAt))

	again, err := s.svc.Update(s.ctx, callerOf(s.staff), created.ID, service.ResourceInput{
		Name: str("Renamed"), URL: str("https://b.com"), Description: str("new"),
	}, false)
	require.NoError(s.T(), err)
	assert.True(s.T(), again.UpdatedAt.After(updated.UpdatedAt), "identical writes still advance updated_at")
}

func (s *ResourceServiceTestSuite) TestUpdate_PutRequiresAllFields() {
	created, err := s.svc.Create(s.ctx, callerOf(s.staff), validInput())
	require.NoError(s.T(), err)

	_, err = s.svc.Update(s.ctx, callerOf(s.staff), created.ID, service.ResourceInput{Name: str("Only name")}, false)

	var ve *service.ValidationError
	require.True(s.T(), errors.As(err, &ve))
	assert.Equal(s.T(), map[string]string{
		"url":         "This field is required.",
		"description": "This field is required.",
	}, ve.Fields)

	stored, err := s.svc.Get(s.ctx, callerOf(s.staff), created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Test", stored.Name)
}

func (s *ResourceServiceTestSuite) TestUpdate_PatchKeepsAbsentFields() {
	created, err := s.svc.Create(s.ctx, callerOf(s.staff), validInput())
	require.NoError(s.T(), err)

	updated, err := s.svc.Update(s.ctx, callerOf(s.staff), created.ID, service.ResourceInput{Description: str("patched")}, true)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "Test", updated.Name)
	assert.Equal(s.T(), "https://a.com", updated.URL)
	assert.Equal(s.T(), "patched", updated.Description)

	_, err = s.svc.Update(s.ctx, callerOf(s.staff), created.ID, service.ResourceInput{Name: str("")}, true)
	var ve *service.ValidationError
	require.True(s.T(), errors.As(err, &ve))
	assert.Equal(s.T(), map[string]string{"name": "This field may not be blank."}, ve.Fields)
}

func (s *ResourceServiceTestSuite) TestUpdate_GateBeforeLookup() {
	_, err := s.svc.Update(s.ctx, callerOf(s.user), 999, validInput(), false)
	assert.ErrorIs(s.T(), err, service.ErrPermissionDenied)

	_, err = s.svc.Update(s.ctx, callerOf(s.staff), 999, validInput(), false)
	assert.ErrorIs(s.T(), err, service.ErrResourceNotFound)
}

func (s *ResourceServiceTestSuite) TestDelete() {
	created, err := s.svc.Create(s.ctx, callerOf(s.admin), validInput())
	require.NoError(s.T(), err)

	assert.ErrorIs(s.T(), s.svc.Delete(s.ctx, callerOf(s.user), created.ID), service.ErrPermissionDenied)
	_, err = s.svc.Get(s.ctx, callerOf(s.user), created.ID)
	require.NoError(s.T(), err, "denied delete leaves the record in place")

	require.NoError(s.T(), s.svc.Delete(s.ctx, callerOf(s.staff), created.ID))

	_, err = s.svc.Get(s.ctx, callerOf(s.admin), created.ID)
	assert.ErrorIs(s.T(), err, service.ErrResourceNotFound)

	assert.ErrorIs(s.T(), s.svc.Delete(s.ctx, callerOf(s.staff), created.ID), service.ErrResourceNotFound)
}

func (s *ResourceServiceTestSuite) TestList_Search() {
	for _, name := range []string{"GitHub", "GitLab", "Django Documentation", "MDN Web Docs"} {
		_, err := s.svc.Create(s.ctx, callerOf(s.admin), service.ResourceInput{
			Name: str(name), URL: str("https://example.com/"), Description: str("d"),
		})
		require.NoError(s.T(), err)
	}

	found, err := s.svc.List(s.ctx, callerOf(s.user), "github")
	require.NoError(s.T(), err)
	require.Len(s.T(), found, 1)
	assert.Equal(s.T(), "GitHub", found[0].Name)

	found, err = s.svc.List(s.ctx, callerOf(s.user), "DOC")
	require.NoError(s.T(), err)
	assert.Len(s.T(), found, 2)

	found, err = s.svc.List(s.ctx, callerOf(s.user), "")
	require.NoError(s.T(), err)
	assert.Len(s.T(), found, 4, "empty search lists everything")
	assert.Equal(s.T(), "MDN Web Docs", found[0].Name, "newest first")

	found, err = s.svc.List(s.ctx, callerOf(s.user), " ")
	require.NoError(s.T(), err)
	assert.Len(s.T(), found, 2, "whitespace is matched literally")

	found, err = s.svc.List(s.ctx, callerOf(s.user), "  ")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), found)
}

func (s *ResourceServiceTestSuite) TestMutations_RecordJournalAndEvents() {
	created, err := s.svc.Create(s.ctx, callerOf(s.staff), validInput())
	require.NoError(s.T(), err)
	_, err = s.svc.Update(s.ctx, callerOf(s.staff), created.ID, service.ResourceInput{Name: str("Renamed")}, true)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.svc.Delete(s.ctx, callerOf(s.admin), created.ID))

	published := s.publisher.Events()
	require.Len(s.T(), published, 3)
	assert.Equal(s.T(), events.ResourceCreated, published[0].Type)
	assert.Equal(s.T(), events.ResourceUpdated, published[1].Type)
	assert.Equal(s.T(), "Renamed", published[1].Name)
	assert.Equal(s.T(), events.ResourceDeleted, published[2].Type)
	assert.Equal(s.T(), s.admin.ID.String(), published[2].ActorID)

	entries, err := s.journal.ReadAll()
	require.NoError(s.T(), err)
	require.Len(s.T(), entries, 3)
	assert.Equal(s.T(), "created", entries[0].Action)
	assert.Equal(s.T(), "updated", entries[1].Action)
	assert.Equal(s.T(), "deleted", entries[2].Action)
	assert.Equal(s.T(), created.ID, entries[2].ResourceID)
	assert.Equal(s.T(), "admin", entries[2].ActorRole)
}

func (s *ResourceServiceTestSuite) TestMutations_PublishFailureDoesNotFailRequest() {
	s.publisher.err = errors.New("broker down")

	_, err := s.svc.Create(s.ctx, callerOf(s.staff), validInput())
	assert.NoError(s.T(), err)
}

func (s *ResourceServiceTestSuite) TestConcurrentUpdates() {
	created, err := s.svc.Create(s.ctx, callerOf(s.admin), validInput())
	require.NoError(s.T(), err)

	secondStaff := testutil.CreateTestUser(s.T(), s.testDB.DB, "staff2", "staff2@example.com", "Test123456", models.RoleStaff)
	writers := []*models.User{s.staff, secondStaff}

	var wg sync.WaitGroup
	results := make([]*models.Resource, len(writers))
	errs := make([]error, len(writers))

	for i, w := range writers {
		wg.Add(1)
		go func(i int, w *models.User) {
			defer wg.Done()
			results[i], errs[i] = s.svc.Update(s.ctx, callerOf(w), created.ID, service.ResourceInput{
				Name:        str("Written by " + w.Username),
				URL:         str("https://" + w.Username + ".example.com/"),
				Description: str("by " + w.Username),
			}, false)
		}(i, w)
	}
	wg.Wait()

	for i := range writers {
		require.NoError(s.T(), errs[i])
	}

	last := results[0]
	if results[1].UpdatedAt.After(last.UpdatedAt) {
		last = results[1]
	}
	assert.False(s.T(), results[0].UpdatedAt.Equal(results[1].UpdatedAt), "each commit gets its own updated_at")

	stored, err := s.svc.Get(s.ctx, callerOf(s.admin), created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), last.Name, stored.Name)
	assert.Equal(s.T(), last.URL, stored.URL)
	assert.Equal(s.T(), last.Description, stored.Description, "no mix of the two writes")
	assert.True(s.T(), last.UpdatedAt.Equal(stored.UpdatedAt))
	assert.Equal(s.T(), s.admin.ID, stored.CreatedByID)
}

func TestResourceServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ResourceServiceTestSuite))
}
