package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"agenda/api/internal/config"
	"agenda/api/internal/store"
)

type fakeStore struct {
	getEventFn                  func(context.Context, string) (store.Event, error)
	listEventsFn                func(context.Context, store.EventFilter) ([]store.Event, error)
	insertEventFn               func(context.Context, store.Event) error
	updateDraftFn               func(context.Context, store.Event) error
	saveReviewFn                func(context.Context, store.Event) error
	updateAudienceFn            func(context.Context, store.Event) error
	updateEventStateFn          func(context.Context, string, store.EventState) error
	rootAncestorFn              func(context.Context, string) (string, error)
	descendantsFn               func(context.Context, string, ...store.EventState) ([]store.Event, error)
	promoteEventFn              func(context.Context, string, string) (store.PromotionResult, error)
	hardDeleteEventFn           func(context.Context, string) error
	softDeleteEventFn           func(context.Context, string) error
	listDepartmentsFn           func(context.Context) ([]store.Department, error)
	getDepartmentFn             func(context.Context, string) (store.Department, error)
	hasOpenRegistrationPeriodFn func(context.Context, []string, time.Time, time.Time) (bool, error)
	getUserByIDFn               func(context.Context, string) (store.User, error)
	getEventGroupFn             func(context.Context, string) (store.EventGroup, error)
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID}, nil
}
func (f *fakeStore) GetUserByEmail(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) CreateUser(context.Context, store.User) error { return nil }
func (f *fakeStore) UpdateUserRole(context.Context, string, string) error { return nil }
func (f *fakeStore) ListAdmins(context.Context) ([]store.User, error) { return nil, nil }
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error {
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) { return false, nil }

func (f *fakeStore) GetEvent(ctx context.Context, eventID string) (store.Event, error) {
	if f.getEventFn != nil {
		return f.getEventFn(ctx, eventID)
	}
	return store.Event{}, sql.ErrNoRows
}
func (f *fakeStore) ListEvents(ctx context.Context, filter store.EventFilter) ([]store.Event, error) {
	if f.listEventsFn != nil {
		return f.listEventsFn(ctx, filter)
	}
	return nil, nil
}
func (f *fakeStore) InsertEvent(ctx context.Context, item store.Event) error {
	if f.insertEventFn != nil {
		return f.insertEventFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateDraft(ctx context.Context, item store.Event) error {
	if f.updateDraftFn != nil {
		return f.updateDraftFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) SaveReview(ctx context.Context, item store.Event) error {
	if f.saveReviewFn != nil {
		return f.saveReviewFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateAudience(ctx context.Context, item store.Event) error {
	if f.updateAudienceFn != nil {
		return f.updateAudienceFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateEventState(ctx context.Context, eventID string, state store.EventState) error {
	if f.updateEventStateFn != nil {
		return f.updateEventStateFn(ctx, eventID, state)
	}
	return nil
}
func (f *fakeStore) RootAncestor(ctx context.Context, eventID string) (string, error) {
	if f.rootAncestorFn != nil {
		return f.rootAncestorFn(ctx, eventID)
	}
	return eventID, nil
}
func (f *fakeStore) Descendants(ctx context.Context, rootID string, states ...store.EventState) ([]store.Event, error) {
	if f.descendantsFn != nil {
		return f.descendantsFn(ctx, rootID, states...)
	}
	return nil, nil
}
func (f *fakeStore) PromoteEvent(ctx context.Context, publishedID, candidateID string) (store.PromotionResult, error) {
	if f.promoteEventFn != nil {
		return f.promoteEventFn(ctx, publishedID, candidateID)
	}
	return store.PromotionResult{}, nil
}
func (f *fakeStore) HardDeleteEvent(ctx context.Context, eventID string) error {
	if f.hardDeleteEventFn != nil {
		return f.hardDeleteEventFn(ctx, eventID)
	}
	return nil
}
func (f *fakeStore) SoftDeleteEvent(ctx context.Context, eventID string) error {
	if f.softDeleteEventFn != nil {
		return f.softDeleteEventFn(ctx, eventID)
	}
	return nil
}

func (f *fakeStore) GetDepartment(ctx context.Context, departmentID string) (store.Department, error) {
	if f.getDepartmentFn != nil {
		return f.getDepartmentFn(ctx, departmentID)
	}
	return store.Department{}, sql.ErrNoRows
}
func (f *fakeStore) ListDepartments(ctx context.Context) ([]store.Department, error) {
	if f.listDepartmentsFn != nil {
		return f.listDepartmentsFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) InsertDepartment(context.Context, store.Department) error { return nil }
func (f *fakeStore) UpdateDepartment(context.Context, store.Department) error { return nil }
func (f *fakeStore) DeleteDepartment(context.Context, string) error { return nil }

func (f *fakeStore) GetEventGroup(ctx context.Context, groupID string) (store.EventGroup, error) {
	if f.getEventGroupFn != nil {
		return f.getEventGroupFn(ctx, groupID)
	}
	return store.EventGroup{}, sql.ErrNoRows
}
func (f *fakeStore) ListEventGroups(context.Context, string) ([]store.EventGroup, error) {
	return nil, nil
}
func (f *fakeStore) InsertEventGroup(context.Context, store.EventGroup) error { return nil }
func (f *fakeStore) UpdateEventGroup(context.Context, store.EventGroup) error { return nil }
func (f *fakeStore) DeleteEventGroup(context.Context, string) error { return nil }
func (f *fakeStore) LinkEventToGroup(context.Context, string, string) error { return nil }
func (f *fakeStore) UnlinkEventFromGroup(context.Context, string, string) error { return nil }

func (f *fakeStore) GetRegistrationPeriod(context.Context, string) (store.RegistrationPeriod, error) {
	return store.RegistrationPeriod{}, sql.ErrNoRows
}
func (f *fakeStore) ListRegistrationPeriods(context.Context) ([]store.RegistrationPeriod, error) {
	return nil, nil
}
func (f *fakeStore) InsertRegistrationPeriod(context.Context, store.RegistrationPeriod) error {
	return nil
}
func (f *fakeStore) UpdateRegistrationPeriod(context.Context, store.RegistrationPeriod) error {
	return nil
}
func (f *fakeStore) DeleteRegistrationPeriod(context.Context, string) error { return nil }
func (f *fakeStore) HasOpenRegistrationPeriod(ctx context.Context, departmentIDs []string, now, eventStart time.Time) (bool, error) {
	if f.hasOpenRegistrationPeriodFn != nil {
		return f.hasOpenRegistrationPeriodFn(ctx, departmentIDs, now, eventStart)
	}
	return false, nil
}

func (f *fakeStore) GetJob(context.Context, string) (store.Job, error) {
	return store.Job{}, sql.ErrNoRows
}
func (f *fakeStore) ListJobs(context.Context, string) ([]store.Job, error) { return nil, nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct{}

func (fakeSessions) SaveRefreshSession(context.Context, string, store.User, time.Time) error {
	return nil
}
func (fakeSessions) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (fakeSessions) RevokeRefreshSession(context.Context, string) error { return nil }

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: fakeSessions{},
	}
}

func userSession(userID string) Session {
	return Session{UserID: userID, Email: userID + "@school.test", Role: "user"}
}

func adminSession() Session {
	return Session{UserID: "admin-1", Email: "admin@school.test", Role: "admin"}
}

func draftEvent(id, authorID string) store.Event {
	return store.Event{
		ID:          id,
		AuthorID:    authorID,
		State:       store.EventStateDraft,
		Description: "Sports day",
		Start:       time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC),
	}
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected a domain error, got %v", err)
	}
	return domainErr.Code
}

func TestRequestReviewRequiresOpenPeriodForNewLineage(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	event.DepartmentIDs = []string{"dep-1"}
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			if id != event.ID {
				return store.Event{}, sql.ErrNoRows
			}
			return event, nil
		},
		hasOpenRegistrationPeriodFn: func(_ context.Context, departmentIDs []string, _, _ time.Time) (bool, error) {
			if len(departmentIDs) != 1 || departmentIDs[0] != "dep-1" {
				t.Fatalf("unexpected departments %v", departmentIDs)
			}
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.RequestReview(context.Background(), userSession("user-1"), "evt-1")
	if code := domainCode(t, err); code != "CONSTRAINT_VIOLATION" {
		t.Fatalf("expected CONSTRAINT_VIOLATION, got %s", code)
	}
}

func TestRequestReviewNeedsADepartmentTarget(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			return event, nil
		},
		hasOpenRegistrationPeriodFn: func(_ context.Context, _ []string, _, _ time.Time) (bool, error) {
			t.Fatal("window check must not run for an event without departments")
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.RequestReview(context.Background(), userSession("user-1"), "evt-1")
	if code := domainCode(t, err); code != "CONSTRAINT_VIOLATION" {
		t.Fatalf("expected CONSTRAINT_VIOLATION, got %s", code)
	}
}

func TestRequestReviewAdminBypassesRegistrationWindow(t *testing.T) {
	event := draftEvent("evt-1", "admin-1")
	var saved *store.Event
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			if saved != nil {
				return *saved, nil
			}
			return event, nil
		},
		saveReviewFn: func(_ context.Context, item store.Event) error {
			saved = &item
			return nil
		},
		hasOpenRegistrationPeriodFn: func(context.Context, []string, time.Time, time.Time) (bool, error) {
			t.Fatal("admins must not be gated on registration periods")
			return false, nil
		},
	}
	svc := newTestService(fs)

	updated, err := svc.RequestReview(context.Background(), adminSession(), "evt-1")
	if err != nil {
		t.Fatalf("RequestReview: %v", err)
	}
	if updated.State != store.EventStateReview {
		t.Fatalf("expected REVIEW, got %s", updated.State)
	}
}

func TestRequestReviewRepointsRevisionAtLineageRoot(t *testing.T) {
	staleParent := "evt-old"
	event := draftEvent("evt-2", "user-1")
	event.ParentID = &staleParent

	var saved *store.Event
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			if saved != nil {
				return *saved, nil
			}
			return event, nil
		},
		rootAncestorFn: func(_ context.Context, id string) (string, error) {
			return "evt-root", nil
		},
		saveReviewFn: func(_ context.Context, item store.Event) error {
			saved = &item
			return nil
		},
	}
	svc := newTestService(fs)

	updated, err := svc.RequestReview(context.Background(), userSession("user-1"), "evt-2")
	if err != nil {
		t.Fatalf("RequestReview: %v", err)
	}
	if updated.ParentID == nil || *updated.ParentID != "evt-root" {
		t.Fatalf("expected parent evt-root, got %v", updated.ParentID)
	}
}

func TestRequestReviewRejectsNonDraft(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	event.State = store.EventStateReview
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) { return event, nil },
	}
	svc := newTestService(fs)

	_, err := svc.RequestReview(context.Background(), userSession("user-1"), "evt-1")
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %s", code)
	}
}

func TestRequestReviewForbiddenForStrangers(t *testing.T) {
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) {
			return draftEvent("evt-1", "user-1"), nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.RequestReview(context.Background(), userSession("user-2"), "evt-1")
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}

func TestPublishAdminOnly(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	_, err := svc.Publish(context.Background(), userSession("user-1"), "evt-1")
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}

func TestPublishNewLineagePromotesInPlace(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	event.State = store.EventStateReview

	published := event
	published.State = store.EventStatePublished
	var stateUpdates []store.EventState
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			if len(stateUpdates) > 0 {
				return published, nil
			}
			return event, nil
		},
		updateEventStateFn: func(_ context.Context, id string, state store.EventState) error {
			stateUpdates = append(stateUpdates, state)
			return nil
		},
		promoteEventFn: func(context.Context, string, string) (store.PromotionResult, error) {
			t.Fatal("a parentless candidate must not go through the swap")
			return store.PromotionResult{}, nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.Publish(context.Background(), adminSession(), "evt-1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.Event.State != store.EventStatePublished {
		t.Fatalf("expected PUBLISHED, got %s", result.Event.State)
	}
	if result.Event.ID != "evt-1" {
		t.Fatalf("identity must be preserved, got %s", result.Event.ID)
	}
	if len(stateUpdates) != 1 || stateUpdates[0] != store.EventStatePublished {
		t.Fatalf("unexpected state updates %v", stateUpdates)
	}
}

func TestPublishRevisionSwapsOntoAnchor(t *testing.T) {
	parent := "evt-root"
	candidate := draftEvent("evt-candidate", "user-1")
	candidate.State = store.EventStateReview
	candidate.ParentID = &parent

	anchor := draftEvent("evt-root", "user-1")
	anchor.State = store.EventStatePublished
	relegated := candidate
	relegated.State = store.EventStateRefused

	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			return candidate, nil
		},
		rootAncestorFn: func(_ context.Context, id string) (string, error) {
			return "evt-root", nil
		},
		promoteEventFn: func(_ context.Context, publishedID, candidateID string) (store.PromotionResult, error) {
			if publishedID != "evt-root" || candidateID != "evt-candidate" {
				t.Fatalf("unexpected swap %s <- %s", publishedID, candidateID)
			}
			return store.PromotionResult{Event: anchor, PreviousVersion: &relegated}, nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.Publish(context.Background(), adminSession(), "evt-candidate")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if result.Event.ID != "evt-root" {
		t.Fatalf("published anchor id must survive the swap, got %s", result.Event.ID)
	}
	if result.PreviousVersion == nil {
		t.Fatal("expected the relegated previous version in the result")
	}
}

func TestPublishMapsSwapConflict(t *testing.T) {
	parent := "evt-root"
	candidate := draftEvent("evt-candidate", "user-1")
	candidate.State = store.EventStateReview
	candidate.ParentID = &parent

	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) { return candidate, nil },
		promoteEventFn: func(context.Context, string, string) (store.PromotionResult, error) {
			return store.PromotionResult{}, store.ErrConflict
		},
	}
	svc := newTestService(fs)

	_, err := svc.Publish(context.Background(), adminSession(), "evt-candidate")
	if code := domainCode(t, err); code != "CONFLICT" {
		t.Fatalf("expected CONFLICT, got %s", code)
	}
}

func TestPublishRejectsTerminalStates(t *testing.T) {
	for _, state := range []store.EventState{store.EventStatePublished, store.EventStateRefused} {
		event := draftEvent("evt-1", "user-1")
		event.State = state
		fs := &fakeStore{
			getEventFn: func(context.Context, string) (store.Event, error) { return event, nil },
		}
		svc := newTestService(fs)

		_, err := svc.Publish(context.Background(), adminSession(), "evt-1")
		if code := domainCode(t, err); code != "INVALID_TRANSITION" {
			t.Fatalf("state %s: expected INVALID_TRANSITION, got %s", state, code)
		}
	}
}

func TestRefuseRequiresReviewState(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) { return event, nil },
	}
	svc := newTestService(fs)

	_, err := svc.Refuse(context.Background(), adminSession(), "evt-1", "not enough detail")
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %s", code)
	}
}

func TestRefuseMovesCandidateToRefused(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	event.State = store.EventStateReview
	refused := event
	refused.State = store.EventStateRefused

	var refusedID string
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			if refusedID != "" {
				return refused, nil
			}
			return event, nil
		},
		updateEventStateFn: func(_ context.Context, id string, state store.EventState) error {
			if state != store.EventStateRefused {
				t.Fatalf("expected REFUSED, got %s", state)
			}
			refusedID = id
			return nil
		},
	}
	svc := newTestService(fs)

	updated, err := svc.Refuse(context.Background(), adminSession(), "evt-1", "clashes with exams")
	if err != nil {
		t.Fatalf("Refuse: %v", err)
	}
	if updated.State != store.EventStateRefused {
		t.Fatalf("expected REFUSED, got %s", updated.State)
	}
}

func TestNormalizeAudienceDraftOnly(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	event.State = store.EventStatePublished
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) { return event, nil },
	}
	svc := newTestService(fs)

	_, err := svc.NormalizeAudience(context.Background(), userSession("user-1"), "evt-1")
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %s", code)
	}
}

func TestNormalizeAudienceCollapsesCoveredClasses(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	event.Start = time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC)
	event.Classes = []string{"28GA", "28GB"}
	event.ClassGroups = []string{"28G"}

	var saved *store.Event
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			if saved != nil {
				return *saved, nil
			}
			return event, nil
		},
		updateAudienceFn: func(_ context.Context, item store.Event) error {
			saved = &item
			return nil
		},
		listDepartmentsFn: func(context.Context) ([]store.Department, error) {
			return []store.Department{
				{ID: "dep-1", Letter: "G", ClassLetters: []string{"A", "B"}},
			}, nil
		},
	}
	svc := newTestService(fs)

	updated, err := svc.NormalizeAudience(context.Background(), userSession("user-1"), "evt-1")
	if err != nil {
		t.Fatalf("NormalizeAudience: %v", err)
	}
	if len(updated.Classes) != 0 {
		t.Fatalf("group-covered classes should be dropped, got %v", updated.Classes)
	}
	if len(updated.ClassGroups) != 1 || updated.ClassGroups[0] != "28G" {
		t.Fatalf("expected the covering group to survive, got %v", updated.ClassGroups)
	}
}

func TestUpdateEventOnlyDrafts(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	event.State = store.EventStatePublished
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) { return event, nil },
	}
	svc := newTestService(fs)

	_, err := svc.UpdateEvent(context.Background(), userSession("user-1"), "evt-1", EventInput{
		Description: "Changed",
		Start:       event.Start,
		End:         event.End,
	})
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %s", code)
	}
}

func TestCreateRevisionOnlyOnPublished(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) { return event, nil },
	}
	svc := newTestService(fs)

	_, err := svc.CreateRevision(context.Background(), userSession("user-2"), "evt-1")
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("expected INVALID_TRANSITION, got %s", code)
	}
}

func TestCreateRevisionPointsAtPublishedParent(t *testing.T) {
	event := draftEvent("evt-root", "user-1")
	event.State = store.EventStatePublished

	var inserted *store.Event
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			if inserted != nil && id == inserted.ID {
				return *inserted, nil
			}
			return event, nil
		},
		insertEventFn: func(_ context.Context, item store.Event) error {
			inserted = &item
			return nil
		},
	}
	svc := newTestService(fs)

	revision, err := svc.CreateRevision(context.Background(), userSession("user-2"), "evt-root")
	if err != nil {
		t.Fatalf("CreateRevision: %v", err)
	}
	if revision.State != store.EventStateDraft {
		t.Fatalf("expected DRAFT, got %s", revision.State)
	}
	if revision.ParentID == nil || *revision.ParentID != "evt-root" {
		t.Fatalf("expected parent evt-root, got %v", revision.ParentID)
	}
	if revision.AuthorID != "user-2" {
		t.Fatalf("revision belongs to its editor, got %s", revision.AuthorID)
	}
	if revision.ID == event.ID {
		t.Fatal("revision must get its own id")
	}
}

func TestCloneStartsFreshLineageWithProvenance(t *testing.T) {
	parent := "evt-root"
	source := draftEvent("evt-child", "user-1")
	source.State = store.EventStatePublished
	source.ParentID = &parent

	var inserted *store.Event
	fs := &fakeStore{
		getEventFn: func(_ context.Context, id string) (store.Event, error) {
			if inserted != nil && id == inserted.ID {
				return *inserted, nil
			}
			return source, nil
		},
		rootAncestorFn: func(context.Context, string) (string, error) { return "evt-root", nil },
		insertEventFn: func(_ context.Context, item store.Event) error {
			inserted = &item
			return nil
		},
	}
	svc := newTestService(fs)

	clone, err := svc.CloneEvent(context.Background(), userSession("user-2"), "evt-child")
	if err != nil {
		t.Fatalf("CloneEvent: %v", err)
	}
	if clone.ParentID != nil {
		t.Fatalf("a clone starts a fresh lineage, got parent %v", clone.ParentID)
	}
	if clone.ClonedFromID == nil || *clone.ClonedFromID != "evt-root" {
		t.Fatalf("expected provenance evt-root, got %v", clone.ClonedFromID)
	}
	if !clone.Cloned || clone.State != store.EventStateDraft {
		t.Fatalf("expected a cloned draft, got cloned=%v state=%s", clone.Cloned, clone.State)
	}
}

func TestDeleteDraftHardDeletes(t *testing.T) {
	var hard, soft bool
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) {
			return draftEvent("evt-1", "user-1"), nil
		},
		hardDeleteEventFn: func(context.Context, string) error { hard = true; return nil },
		softDeleteEventFn: func(context.Context, string) error { soft = true; return nil },
	}
	svc := newTestService(fs)

	if err := svc.DeleteEvent(context.Background(), userSession("user-1"), "evt-1"); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if !hard || soft {
		t.Fatalf("expected a hard delete only, hard=%v soft=%v", hard, soft)
	}
}

func TestDeletePublishedIsAdminSoftDelete(t *testing.T) {
	event := draftEvent("evt-1", "user-1")
	event.State = store.EventStatePublished

	var hard, soft bool
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) { return event, nil },
		hardDeleteEventFn: func(context.Context, string) error { hard = true; return nil },
		softDeleteEventFn: func(context.Context, string) error { soft = true; return nil },
	}
	svc := newTestService(fs)

	if err := svc.DeleteEvent(context.Background(), userSession("user-1"), "evt-1"); err == nil {
		t.Fatal("the author must not delete a published event")
	}
	if err := svc.DeleteEvent(context.Background(), adminSession(), "evt-1"); err != nil {
		t.Fatalf("DeleteEvent as admin: %v", err)
	}
	if hard || !soft {
		t.Fatalf("expected a soft delete only, hard=%v soft=%v", hard, soft)
	}
}

func TestListEventsVisibility(t *testing.T) {
	published := draftEvent("evt-pub", "user-9")
	published.State = store.EventStatePublished
	ownDraft := draftEvent("evt-own", "user-1")

	fs := &fakeStore{
		listEventsFn: func(_ context.Context, filter store.EventFilter) ([]store.Event, error) {
			if filter.AuthorID == "user-1" {
				return []store.Event{ownDraft}, nil
			}
			if len(filter.States) == 1 && filter.States[0] == store.EventStatePublished {
				return []store.Event{published}, nil
			}
			return []store.Event{published, ownDraft}, nil
		},
	}
	svc := newTestService(fs)

	anonymous, err := svc.ListEventsFor(context.Background(), nil, store.EventFilter{})
	if err != nil {
		t.Fatalf("ListEventsFor anonymous: %v", err)
	}
	if len(anonymous) != 1 || anonymous[0].ID != "evt-pub" {
		t.Fatalf("anonymous callers see published only, got %v", anonymous)
	}

	session := userSession("user-1")
	own, err := svc.ListEventsFor(context.Background(), &session, store.EventFilter{})
	if err != nil {
		t.Fatalf("ListEventsFor user: %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("users see published plus their own, got %d events", len(own))
	}
}

func TestGetEventDetailHidesForeignDrafts(t *testing.T) {
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) {
			return draftEvent("evt-1", "user-1"), nil
		},
	}
	svc := newTestService(fs)

	stranger := userSession("user-2")
	_, err := svc.GetEventDetail(context.Background(), &stranger, "evt-1")
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestDeletedEventsAreInvisible(t *testing.T) {
	deletedAt := time.Now()
	event := draftEvent("evt-1", "user-1")
	event.DeletedAt = &deletedAt
	fs := &fakeStore{
		getEventFn: func(context.Context, string) (store.Event, error) { return event, nil },
	}
	svc := newTestService(fs)

	_, err := svc.RequestReview(context.Background(), userSession("user-1"), "evt-1")
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestCreateDepartmentReportsLetterCollisions(t *testing.T) {
	fs := &fakeStore{
		listDepartmentsFn: func(context.Context) ([]store.Department, error) {
			return []store.Department{
				{ID: "dep-1", Letter: "G", ClassLetters: []string{"A", "B"}},
			}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateDepartment(context.Background(), adminSession(), DepartmentInput{
		Name:         "Technique",
		Letter:       "G",
		ClassLetters: []string{"B", "C"},
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "CONSTRAINT_VIOLATION" {
		t.Fatalf("expected CONSTRAINT_VIOLATION, got %v", err)
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected collision details, got %v", domainErr.Details)
	}
	collisions, ok := details["collisions"].([]string)
	if !ok || len(collisions) != 1 || collisions[0] != "GB" {
		t.Fatalf("expected collision GB, got %v", details["collisions"])
	}
}

func TestCreateDepartmentRejectsSelfPair(t *testing.T) {
	depID := "dep-1"
	fs := &fakeStore{
		listDepartmentsFn: func(context.Context) ([]store.Department, error) { return nil, nil },
		getDepartmentFn: func(_ context.Context, id string) (store.Department, error) {
			return store.Department{ID: id}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateDepartment(context.Background(), adminSession(), DepartmentInput{
		Name:          "Bilingual",
		Letter:        "K",
		Department1ID: &depID,
		Department2ID: &depID,
	})
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestCreateDepartmentRejectsDuplicateBilingualPair(t *testing.T) {
	dep1, dep2 := "dep-1", "dep-2"
	fs := &fakeStore{
		listDepartmentsFn: func(context.Context) ([]store.Department, error) {
			return []store.Department{
				{ID: "dep-1", Letter: "G"},
				{ID: "dep-2", Letter: "T"},
				{ID: "dep-bi", Letter: "K", Department1ID: &dep2, Department2ID: &dep1},
			}, nil
		},
		getDepartmentFn: func(_ context.Context, id string) (store.Department, error) {
			return store.Department{ID: id}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateDepartment(context.Background(), adminSession(), DepartmentInput{
		Name:          "Bilingual",
		Letter:        "L",
		Department1ID: &dep1,
		Department2ID: &dep2,
	})
	if code := domainCode(t, err); code != "CONSTRAINT_VIOLATION" {
		t.Fatalf("expected CONSTRAINT_VIOLATION, got %s", code)
	}
}

func TestGroupOwnershipEnforced(t *testing.T) {
	fs := &fakeStore{
		getEventGroupFn: func(_ context.Context, id string) (store.EventGroup, error) {
			return store.EventGroup{ID: id, UserID: "user-1", Name: "Trips"}, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.GetGroup(context.Background(), userSession("user-1"), "grp-1"); err != nil {
		t.Fatalf("owner access: %v", err)
	}
	if _, err := svc.GetGroup(context.Background(), adminSession(), "grp-1"); err != nil {
		t.Fatalf("admin access: %v", err)
	}
	_, err := svc.GetGroup(context.Background(), userSession("user-2"), "grp-1")
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND for strangers, got %s", code)
	}
}

func TestRegistrationPeriodValidation(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	_, err := svc.CreateRegistrationPeriod(context.Background(), adminSession(), PeriodInput{
		Name:            "Autumn window",
		Start:           "2026-09-01T00:00:00Z",
		End:             "2026-08-01T00:00:00Z",
		EventRangeStart: "2026-10-01T00:00:00Z",
		EventRangeEnd:   "2026-12-20T00:00:00Z",
	})
	if code := domainCode(t, err); code != "CONSTRAINT_VIOLATION" {
		t.Fatalf("expected CONSTRAINT_VIOLATION, got %s", code)
	}

	_, err = svc.CreateRegistrationPeriod(context.Background(), userSession("user-1"), PeriodInput{})
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}

func TestSetUserRoleAdminOnly(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	_, err := svc.SetUserRole(context.Background(), userSession("user-1"), "user-2", "admin")
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}
