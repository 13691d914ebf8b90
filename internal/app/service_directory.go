package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"agenda/api/internal/audience"
	"agenda/api/internal/search"
	"agenda/api/internal/store"
	"agenda/api/internal/util"
)

type DepartmentInput struct {
	Name          string   `json:"name"`
	Letter        string   `json:"letter"`
	DisplayLetter *string  `json:"displayLetter"`
	ClassLetters  []string `json:"classLetters"`
	Color         string   `json:"color"`
	Department1ID *string  `json:"department1Id"`
	Department2ID *string  `json:"department2Id"`
}

func (in DepartmentInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return validationError("department name is required")
	}
	if len(in.Letter) != 1 || in.Letter[0] < 'A' || in.Letter[0] > 'Z' {
		return validationError("department letter must be a single capital letter")
	}
	if in.DisplayLetter != nil && *in.DisplayLetter != "" {
		letter := *in.DisplayLetter
		if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
			return validationError("display letter must be a single capital letter")
		}
	}
	for _, classLetter := range in.ClassLetters {
		if len(classLetter) != 1 || classLetter[0] < 'A' || classLetter[0] > 'Z' {
			return validationError("class letters must be single capital letters")
		}
	}
	return nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]store.Department, error) {
	return s.store.ListDepartments(ctx)
}

func (s *Service) GetDepartment(ctx context.Context, departmentID string) (store.Department, error) {
	item, err := s.store.GetDepartment(ctx, departmentID)
	if err != nil {
		return store.Department{}, s.mapNotFound(err, "department not found")
	}
	return item, nil
}

// CreateDepartment registers an organizational unit. The letter/class-letter
// combinations it claims must be free, and a bilingual unit must reference
// two distinct existing departments.
func (s *Service) CreateDepartment(ctx context.Context, actor Session, in DepartmentInput) (store.Department, error) {
	if !s.isAdmin(actor) {
		return store.Department{}, forbidden("only admins may manage departments")
	}
	if err := in.validate(); err != nil {
		return store.Department{}, err
	}

	item := store.Department{
		ID:            util.NewID("dep"),
		Name:          strings.TrimSpace(in.Name),
		Letter:        in.Letter,
		DisplayLetter: in.DisplayLetter,
		ClassLetters:  normalizeLetters(in.ClassLetters),
		Color:         in.Color,
		Department1ID: in.Department1ID,
		Department2ID: in.Department2ID,
	}
	if err := s.checkDepartmentConstraints(ctx, item); err != nil {
		return store.Department{}, err
	}
	if err := s.store.InsertDepartment(ctx, item); err != nil {
		return store.Department{}, err
	}
	return s.GetDepartment(ctx, item.ID)
}

func (s *Service) UpdateDepartment(ctx context.Context, actor Session, departmentID string, in DepartmentInput) (store.Department, error) {
	if !s.isAdmin(actor) {
		return store.Department{}, forbidden("only admins may manage departments")
	}
	if err := in.validate(); err != nil {
		return store.Department{}, err
	}
	item, err := s.GetDepartment(ctx, departmentID)
	if err != nil {
		return store.Department{}, err
	}

	item.Name = strings.TrimSpace(in.Name)
	item.Letter = in.Letter
	item.DisplayLetter = in.DisplayLetter
	item.ClassLetters = normalizeLetters(in.ClassLetters)
	item.Color = in.Color
	item.Department1ID = in.Department1ID
	item.Department2ID = in.Department2ID

	if err := s.checkDepartmentConstraints(ctx, item); err != nil {
		return store.Department{}, err
	}
	if err := s.store.UpdateDepartment(ctx, item); err != nil {
		return store.Department{}, err
	}
	return s.GetDepartment(ctx, item.ID)
}

func (s *Service) DeleteDepartment(ctx context.Context, actor Session, departmentID string) error {
	if !s.isAdmin(actor) {
		return forbidden("only admins may manage departments")
	}
	if _, err := s.GetDepartment(ctx, departmentID); err != nil {
		return err
	}
	if err := s.store.DeleteDepartment(ctx, departmentID); err != nil {
		return constraintViolation(err.Error(), nil)
	}
	return nil
}

func (s *Service) checkDepartmentConstraints(ctx context.Context, item store.Department) error {
	others, err := s.store.ListDepartments(ctx)
	if err != nil {
		return err
	}

	directory := make([]audience.Department, 0, len(others))
	for _, other := range others {
		directory = append(directory, audience.Department{
			ID:           other.ID,
			Letter:       other.EffectiveLetter(),
			ClassLetters: other.ClassLetters,
		})
	}
	if collisions := audience.Collisions(item.ID, item.EffectiveLetter(), item.ClassLetters, directory); len(collisions) > 0 {
		return constraintViolation("class letter combinations already taken", map[string]any{
			"collisions": collisions,
		})
	}

	if item.Department1ID == nil && item.Department2ID == nil {
		return nil
	}
	if item.Department1ID == nil || item.Department2ID == nil {
		return validationError("a bilingual department references exactly two departments")
	}
	if *item.Department1ID == *item.Department2ID {
		return validationError("a bilingual department must reference two distinct departments")
	}
	for _, referencedID := range []string{*item.Department1ID, *item.Department2ID} {
		if referencedID == item.ID {
			return validationError("a bilingual department cannot reference itself")
		}
		if _, err := s.store.GetDepartment(ctx, referencedID); err != nil {
			return s.mapNotFound(err, "referenced department not found")
		}
	}
	for _, other := range others {
		if other.ID == item.ID || other.Department1ID == nil || other.Department2ID == nil {
			continue
		}
		if samePair(*other.Department1ID, *other.Department2ID, *item.Department1ID, *item.Department2ID) {
			return constraintViolation("a bilingual department over this pair already exists", map[string]any{
				"departmentId": other.ID,
			})
		}
	}
	return nil
}

func samePair(a1, a2, b1, b2 string) bool {
	return (a1 == b1 && a2 == b2) || (a1 == b2 && a2 == b1)
}

func normalizeLetters(letters []string) []string {
	seen := make(map[string]struct{}, len(letters))
	out := make([]string, 0, len(letters))
	for _, letter := range letters {
		if _, dup := seen[letter]; dup {
			continue
		}
		seen[letter] = struct{}{}
		out = append(out, letter)
	}
	sort.Strings(out)
	return out
}

type GroupInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Service) ListGroups(ctx context.Context, actor Session) ([]store.EventGroup, error) {
	return s.store.ListEventGroups(ctx, actor.UserID)
}

func (s *Service) GetGroup(ctx context.Context, actor Session, groupID string) (store.EventGroup, error) {
	item, err := s.store.GetEventGroup(ctx, groupID)
	if err != nil {
		return store.EventGroup{}, s.mapNotFound(err, "group not found")
	}
	if item.UserID != actor.UserID && !s.isAdmin(actor) {
		return store.EventGroup{}, notFound("group not found")
	}
	return item, nil
}

func (s *Service) CreateGroup(ctx context.Context, actor Session, in GroupInput) (store.EventGroup, error) {
	if strings.TrimSpace(in.Name) == "" {
		return store.EventGroup{}, validationError("group name is required")
	}
	item := store.EventGroup{
		ID:          util.NewID("grp"),
		UserID:      actor.UserID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
	}
	if err := s.store.InsertEventGroup(ctx, item); err != nil {
		return store.EventGroup{}, err
	}
	created, err := s.GetGroup(ctx, actor, item.ID)
	if err != nil {
		return store.EventGroup{}, err
	}
	s.indexGroup(created)
	return created, nil
}

func (s *Service) UpdateGroup(ctx context.Context, actor Session, groupID string, in GroupInput) (store.EventGroup, error) {
	item, err := s.GetGroup(ctx, actor, groupID)
	if err != nil {
		return store.EventGroup{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return store.EventGroup{}, validationError("group name is required")
	}
	item.Name = strings.TrimSpace(in.Name)
	item.Description = in.Description
	if err := s.store.UpdateEventGroup(ctx, item); err != nil {
		return store.EventGroup{}, err
	}
	updated, err := s.GetGroup(ctx, actor, groupID)
	if err != nil {
		return store.EventGroup{}, err
	}
	s.indexGroup(updated)
	return updated, nil
}

func (s *Service) DeleteGroup(ctx context.Context, actor Session, groupID string) error {
	if _, err := s.GetGroup(ctx, actor, groupID); err != nil {
		return err
	}
	if err := s.store.DeleteEventGroup(ctx, groupID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteGroup(groupID)
	}
	return nil
}

// LinkEventToGroup puts an event on one of the actor's personal groups. The
// event only needs to be visible to the actor, not owned.
func (s *Service) LinkEventToGroup(ctx context.Context, actor Session, eventID, groupID string) error {
	if _, err := s.GetGroup(ctx, actor, groupID); err != nil {
		return err
	}
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.State != store.EventStatePublished && event.AuthorID != actor.UserID && !s.isAdmin(actor) {
		return notFound("event not found")
	}
	return s.store.LinkEventToGroup(ctx, eventID, groupID)
}

func (s *Service) UnlinkEventFromGroup(ctx context.Context, actor Session, eventID, groupID string) error {
	if _, err := s.GetGroup(ctx, actor, groupID); err != nil {
		return err
	}
	return s.store.UnlinkEventFromGroup(ctx, eventID, groupID)
}

func (s *Service) indexGroup(item store.EventGroup) {
	if s.search == nil {
		return
	}
	s.search.IndexGroup(search.GroupRecord{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
	})
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}

type PeriodInput struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	EventRangeStart string   `json:"eventRangeStart"`
	EventRangeEnd   string   `json:"eventRangeEnd"`
	IsOpen          bool     `json:"isOpen"`
	DepartmentIDs   []string `json:"departmentIds"`
}

func (in PeriodInput) toPeriod(periodID string) (store.RegistrationPeriod, error) {
	if strings.TrimSpace(in.Name) == "" {
		return store.RegistrationPeriod{}, validationError("period name is required")
	}
	start, err := parseTimestamp(in.Start)
	if err != nil {
		return store.RegistrationPeriod{}, validationError("invalid start timestamp")
	}
	end, err := parseTimestamp(in.End)
	if err != nil {
		return store.RegistrationPeriod{}, validationError("invalid end timestamp")
	}
	rangeStart, err := parseTimestamp(in.EventRangeStart)
	if err != nil {
		return store.RegistrationPeriod{}, validationError("invalid event range start")
	}
	rangeEnd, err := parseTimestamp(in.EventRangeEnd)
	if err != nil {
		return store.RegistrationPeriod{}, validationError("invalid event range end")
	}
	if !end.After(start) {
		return store.RegistrationPeriod{}, constraintViolation("period must end after it starts", nil)
	}
	if !rangeEnd.After(rangeStart) {
		return store.RegistrationPeriod{}, constraintViolation("event range must end after it starts", nil)
	}
	return store.RegistrationPeriod{
		ID:              periodID,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Start:           start,
		End:             end,
		EventRangeStart: rangeStart,
		EventRangeEnd:   rangeEnd,
		IsOpen:          in.IsOpen,
		DepartmentIDs:   in.DepartmentIDs,
	}, nil
}

func (s *Service) ListRegistrationPeriods(ctx context.Context) ([]store.RegistrationPeriod, error) {
	return s.store.ListRegistrationPeriods(ctx)
}

func (s *Service) CreateRegistrationPeriod(ctx context.Context, actor Session, in PeriodInput) (store.RegistrationPeriod, error) {
	if !s.isAdmin(actor) {
		return store.RegistrationPeriod{}, forbidden("only admins may manage registration periods")
	}
	item, err := in.toPeriod(util.NewID("per"))
	if err != nil {
		return store.RegistrationPeriod{}, err
	}
	if err := s.checkPeriodDepartments(ctx, item.DepartmentIDs); err != nil {
		return store.RegistrationPeriod{}, err
	}
	if err := s.store.InsertRegistrationPeriod(ctx, item); err != nil {
		return store.RegistrationPeriod{}, err
	}
	return s.store.GetRegistrationPeriod(ctx, item.ID)
}

func (s *Service) UpdateRegistrationPeriod(ctx context.Context, actor Session, periodID string, in PeriodInput) (store.RegistrationPeriod, error) {
	if !s.isAdmin(actor) {
		return store.RegistrationPeriod{}, forbidden("only admins may manage registration periods")
	}
	if _, err := s.store.GetRegistrationPeriod(ctx, periodID); err != nil {
		return store.RegistrationPeriod{}, s.mapNotFound(err, "registration period not found")
	}
	item, err := in.toPeriod(periodID)
	if err != nil {
		return store.RegistrationPeriod{}, err
	}
	if err := s.checkPeriodDepartments(ctx, item.DepartmentIDs); err != nil {
		return store.RegistrationPeriod{}, err
	}
	if err := s.store.UpdateRegistrationPeriod(ctx, item); err != nil {
		return store.RegistrationPeriod{}, err
	}
	return s.store.GetRegistrationPeriod(ctx, periodID)
}

func (s *Service) DeleteRegistrationPeriod(ctx context.Context, actor Session, periodID string) error {
	if !s.isAdmin(actor) {
		return forbidden("only admins may manage registration periods")
	}
	if _, err := s.store.GetRegistrationPeriod(ctx, periodID); err != nil {
		return s.mapNotFound(err, "registration period not found")
	}
	return s.store.DeleteRegistrationPeriod(ctx, periodID)
}

func (s *Service) checkPeriodDepartments(ctx context.Context, departmentIDs []string) error {
	for _, departmentID := range departmentIDs {
		if _, err := s.store.GetDepartment(ctx, departmentID); err != nil {
			return s.mapNotFound(err, "department not found: "+departmentID)
		}
	}
	return nil
}
