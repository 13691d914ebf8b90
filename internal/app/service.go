package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"agenda/api/internal/audience"
	"agenda/api/internal/audit"
	"agenda/api/internal/auth"
	"agenda/api/internal/config"
	"agenda/api/internal/email"
	"agenda/api/internal/importer"
	"agenda/api/internal/rbac"
	"agenda/api/internal/search"
	"agenda/api/internal/store"
	"agenda/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserRole(ctx context.Context, userID, role string) error
	ListAdmins(ctx context.Context) ([]store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	GetEvent(ctx context.Context, eventID string) (store.Event, error)
	ListEvents(ctx context.Context, filter store.EventFilter) ([]store.Event, error)
	InsertEvent(ctx context.Context, item store.Event) error
	UpdateDraft(ctx context.Context, item store.Event) error
	SaveReview(ctx context.Context, item store.Event) error
	UpdateAudience(ctx context.Context, item store.Event) error
	UpdateEventState(ctx context.Context, eventID string, state store.EventState) error
	RootAncestor(ctx context.Context, eventID string) (string, error)
	Descendants(ctx context.Context, rootID string, states ...store.EventState) ([]store.Event, error)
	PromoteEvent(ctx context.Context, publishedID, candidateID string) (store.PromotionResult, error)
	HardDeleteEvent(ctx context.Context, eventID string) error
	SoftDeleteEvent(ctx context.Context, eventID string) error

	GetDepartment(ctx context.Context, departmentID string) (store.Department, error)
	ListDepartments(ctx context.Context) ([]store.Department, error)
	InsertDepartment(ctx context.Context, item store.Department) error
	UpdateDepartment(ctx context.Context, item store.Department) error
	DeleteDepartment(ctx context.Context, departmentID string) error

	GetEventGroup(ctx context.Context, groupID string) (store.EventGroup, error)
	ListEventGroups(ctx context.Context, userID string) ([]store.EventGroup, error)
	InsertEventGroup(ctx context.Context, item store.EventGroup) error
	UpdateEventGroup(ctx context.Context, item store.EventGroup) error
	DeleteEventGroup(ctx context.Context, groupID string) error
	LinkEventToGroup(ctx context.Context, eventID, groupID string) error
	UnlinkEventFromGroup(ctx context.Context, eventID, groupID string) error

	GetRegistrationPeriod(ctx context.Context, periodID string) (store.RegistrationPeriod, error)
	ListRegistrationPeriods(ctx context.Context) ([]store.RegistrationPeriod, error)
	InsertRegistrationPeriod(ctx context.Context, item store.RegistrationPeriod) error
	UpdateRegistrationPeriod(ctx context.Context, item store.RegistrationPeriod) error
	DeleteRegistrationPeriod(ctx context.Context, periodID string) error
	HasOpenRegistrationPeriod(ctx context.Context, departmentIDs []string, now, eventStart time.Time) (bool, error)

	GetJob(ctx context.Context, jobID string) (store.Job, error)
	ListJobs(ctx context.Context, userID string) ([]store.Job, error)

	Ping(ctx context.Context) error
}

// sessionStore is the refresh-token backend: Redis in production, the
// Postgres fallback or a fake elsewhere.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// PGSessions adapts the Postgres store to the sessionStore interface for
// deployments without Redis.
type PGSessions struct {
	Store *store.PostgresStore
}

func (p PGSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.Store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p PGSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.Store.LookupRefreshSession(ctx, tokenHash)
}

func (p PGSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.Store.RevokeRefreshSession(ctx, tokenHash)
}

// Collaborators are the optional side-effect services; each may be nil.
type Collaborators struct {
	Search   *search.Service
	Email    *email.Service
	Audit    *audit.Service
	Importer *importer.Service
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   *search.Service
	email    *email.Service
	audit    *audit.Service
	importer *importer.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, collab Collaborators) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		search:   collab.Search,
		email:    collab.Email,
		audit:    collab.Audit,
		importer: collab.Importer,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) isAdmin(session Session) bool {
	return rbac.Can(rbac.Normalize(session.Role), rbac.ActionAdmin)
}

// Signup registers a new account and opens a session.
func (s *Service) Signup(ctx context.Context, emailAddr, displayName, password string) (Session, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if !strings.Contains(emailAddr, "@") {
		return Session{}, validationError("invalid email address")
	}
	if _, err := s.store.GetUserByEmail(ctx, emailAddr); err == nil {
		return Session{}, validationError("email already registered")
	} else if !store.IsNotFound(err) {
		return Session{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, validationError(err.Error())
	}

	user := store.User{
		ID:           util.NewUUID(),
		Email:        emailAddr,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		Role:         string(rbac.RoleUser),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, forbidden("invalid credentials")
		}
		return Session{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return Session{}, forbidden("invalid credentials")
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token into a fresh session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// SetUserRole promotes or demotes an account (admin only).
func (s *Service) SetUserRole(ctx context.Context, actor Session, userID, role string) (store.User, error) {
	if !s.isAdmin(actor) {
		return store.User{}, forbidden("only admins may change roles")
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return store.User{}, s.mapNotFound(err, "user not found")
	}
	if err := s.store.UpdateUserRole(ctx, userID, string(rbac.Normalize(role))); err != nil {
		return store.User{}, err
	}
	return s.store.GetUserByID(ctx, userID)
}

// RequestReview hands a draft in. A re-edit is re-pointed at the current
// lineage root first; a brand-new lineage needs an open registration
// window unless the actor is an admin. The audience is normalized before
// the state flips to REVIEW.
func (s *Service) RequestReview(ctx context.Context, actor Session, eventID string) (store.Event, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return store.Event{}, err
	}
	if event.AuthorID != actor.UserID && !s.isAdmin(actor) {
		return store.Event{}, forbidden("only the author or an admin may hand an event in")
	}
	if event.State != store.EventStateDraft {
		return store.Event{}, invalidTransition(fmt.Sprintf("cannot hand in an event in state %s", event.State))
	}

	if event.ParentID != nil {
		// The lineage may have advanced since the draft was opened.
		rootID, err := s.store.RootAncestor(ctx, event.ID)
		if err != nil {
			return store.Event{}, s.mapNotFound(err, "lineage root not found")
		}
		event.ParentID = &rootID
	} else if !s.isAdmin(actor) {
		// Registration windows are scoped per department, so a submission
		// without one can never fall inside a window.
		if len(event.DepartmentIDs) == 0 {
			return store.Event{}, constraintViolation("event must target at least one department to be handed in", nil)
		}
		open, err := s.store.HasOpenRegistrationPeriod(ctx, event.DepartmentIDs, time.Now(), event.Start)
		if err != nil {
			return store.Event{}, err
		}
		if !open {
			return store.Event{}, constraintViolation("no open registration period covers this event", nil)
		}
	}

	if err := s.normalizeEventAudience(ctx, &event); err != nil {
		return store.Event{}, err
	}

	event.State = store.EventStateReview
	if err := s.store.SaveReview(ctx, event); err != nil {
		return store.Event{}, err
	}

	updated, err := s.store.GetEvent(ctx, event.ID)
	if err != nil {
		return store.Event{}, err
	}
	s.notifyReviewRequested(ctx, updated, actor)
	return updated, nil
}

// Publish promotes a review candidate. A candidate without a parent simply
// becomes the published anchor of a new lineage; a re-edit goes through
// the swap transaction, which also refuses competing review siblings.
func (s *Service) Publish(ctx context.Context, actor Session, eventID string) (store.PromotionResult, error) {
	if !s.isAdmin(actor) {
		return store.PromotionResult{}, forbidden("only admins may publish")
	}
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return store.PromotionResult{}, err
	}
	switch event.State {
	case store.EventStateReview:
	case store.EventStatePublished, store.EventStateRefused:
		return store.PromotionResult{}, invalidTransition(fmt.Sprintf("%s is terminal", event.State))
	default:
		return store.PromotionResult{}, invalidTransition("only a review candidate can be published")
	}

	var result store.PromotionResult
	if event.ParentID == nil {
		if err := s.store.UpdateEventState(ctx, event.ID, store.EventStatePublished); err != nil {
			return store.PromotionResult{}, err
		}
		result.Event, err = s.store.GetEvent(ctx, event.ID)
		if err != nil {
			return store.PromotionResult{}, err
		}
	} else {
		rootID, err := s.store.RootAncestor(ctx, event.ID)
		if err != nil {
			return store.PromotionResult{}, s.mapNotFound(err, "lineage root not found")
		}
		result, err = s.store.PromoteEvent(ctx, rootID, event.ID)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return store.PromotionResult{}, conflict("concurrent promotion detected, retry")
			}
			return store.PromotionResult{}, err
		}
	}

	s.recordPublish(result, actor, event.ID)
	s.notifyDecision(ctx, result.Event, "")
	if s.search != nil {
		s.search.IndexEvent(search.EventRecord{
			ID:              result.Event.ID,
			Description:     result.Event.Description,
			DescriptionLong: result.Event.DescriptionLong,
			Location:        result.Event.Location,
			State:           string(result.Event.State),
			AuthorID:        result.Event.AuthorID,
		})
	}
	return result, nil
}

// Refuse sends a review candidate back. Terminal states stay terminal.
func (s *Service) Refuse(ctx context.Context, actor Session, eventID, reason string) (store.Event, error) {
	if !s.isAdmin(actor) {
		return store.Event{}, forbidden("only admins may refuse")
	}
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return store.Event{}, err
	}
	switch event.State {
	case store.EventStateReview:
	case store.EventStatePublished, store.EventStateRefused:
		return store.Event{}, invalidTransition(fmt.Sprintf("%s is terminal", event.State))
	default:
		return store.Event{}, invalidTransition("only a review candidate can be refused")
	}

	if err := s.store.UpdateEventState(ctx, event.ID, store.EventStateRefused); err != nil {
		return store.Event{}, err
	}
	updated, err := s.store.GetEvent(ctx, event.ID)
	if err != nil {
		return store.Event{}, err
	}
	s.notifyDecision(ctx, updated, reason)
	return updated, nil
}

// NormalizeAudience minimizes a draft's audience selection in place.
// Applying it twice yields the same row.
func (s *Service) NormalizeAudience(ctx context.Context, actor Session, eventID string) (store.Event, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return store.Event{}, err
	}
	if event.AuthorID != actor.UserID && !s.isAdmin(actor) {
		return store.Event{}, forbidden("only the author or an admin may normalize")
	}
	if event.State != store.EventStateDraft {
		return store.Event{}, invalidTransition("audience can only be normalized on a draft")
	}

	if err := s.normalizeEventAudience(ctx, &event); err != nil {
		return store.Event{}, err
	}
	if err := s.store.UpdateAudience(ctx, event); err != nil {
		return store.Event{}, err
	}
	return s.store.GetEvent(ctx, event.ID)
}

func (s *Service) normalizeEventAudience(ctx context.Context, event *store.Event) error {
	departments, err := s.store.ListDepartments(ctx)
	if err != nil {
		return err
	}
	directory := make([]audience.Department, 0, len(departments))
	for _, department := range departments {
		directory = append(directory, audience.Department{
			ID:           department.ID,
			Letter:       department.EffectiveLetter(),
			ClassLetters: department.ClassLetters,
		})
	}
	result := audience.Normalize(audience.Input{
		Classes:       event.Classes,
		ClassGroups:   event.ClassGroups,
		DepartmentIDs: event.DepartmentIDs,
		Start:         event.Start,
		Departments:   directory,
	})
	event.Classes = result.Classes
	event.ClassGroups = result.ClassGroups
	event.DepartmentIDs = result.DepartmentIDs
	return nil
}

func (s *Service) loadEvent(ctx context.Context, eventID string) (store.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return store.Event{}, s.mapNotFound(err, "event not found")
	}
	if event.DeletedAt != nil {
		return store.Event{}, notFound("event not found")
	}
	return event, nil
}

func (s *Service) mapNotFound(err error, message string) error {
	if store.IsNotFound(err) {
		return notFound(message)
	}
	return err
}

func (s *Service) recordPublish(result store.PromotionResult, actor Session, candidateID string) {
	if s.audit == nil {
		return
	}
	message := fmt.Sprintf("publish %s", result.Event.ID)
	if result.PreviousVersion != nil {
		message = fmt.Sprintf("swap in %s", candidateID)
	}
	if _, err := s.audit.RecordSnapshot(result.Event.ID, audit.SnapshotOf(result.Event), actor.Email, message); err != nil {
		log.Printf("app: audit snapshot %s: %v", result.Event.ID, err)
	}
}

func (s *Service) notifyReviewRequested(ctx context.Context, event store.Event, actor Session) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		log.Printf("app: list admins for notification: %v", err)
		return
	}
	recipients := make([]string, 0, len(admins))
	for _, admin := range admins {
		recipients = append(recipients, admin.Email)
	}
	if len(recipients) == 0 {
		return
	}
	go func() {
		if err := s.email.SendReviewRequested(recipients, event.Description, actor.Email, s.eventURL(event.ID)); err != nil {
			log.Printf("app: review notification: %v", err)
		}
	}()
}

func (s *Service) notifyDecision(ctx context.Context, event store.Event, refusalReason string) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	author, err := s.store.GetUserByID(ctx, event.AuthorID)
	if err != nil {
		log.Printf("app: load author for notification: %v", err)
		return
	}
	go func() {
		var err error
		if event.State == store.EventStateRefused {
			err = s.email.SendRefused(author.Email, event.Description, refusalReason, s.eventURL(event.ID))
		} else {
			err = s.email.SendPublished(author.Email, event.Description, s.eventURL(event.ID))
		}
		if err != nil {
			log.Printf("app: decision notification: %v", err)
		}
	}()
}

func (s *Service) eventURL(eventID string) string {
	origin := s.cfg.CORSOrigin
	if origin == "" || origin == "*" {
		origin = "http://localhost" + s.cfg.Addr
	}
	return origin + "/events/" + eventID
}
