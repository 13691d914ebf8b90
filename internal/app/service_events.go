package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agenda/api/internal/audit"
	"agenda/api/internal/export"
	"agenda/api/internal/search"
	"agenda/api/internal/store"
	"agenda/api/internal/util"
)

type EventInput struct {
	Description      string          `json:"description"`
	DescriptionLong  string          `json:"descriptionLong"`
	Location         string          `json:"location"`
	Start            time.Time       `json:"start"`
	End              time.Time       `json:"end"`
	Audience         string          `json:"audience"`
	TeachingAffected string          `json:"teachingAffected"`
	Classes          []string        `json:"classes"`
	ClassGroups      []string        `json:"classGroups"`
	DepartmentIDs    []string        `json:"departmentIds"`
	GroupIDs         []string        `json:"groupIds"`
	Meta             json.RawMessage `json:"meta"`
}

func (in EventInput) validate() error {
	if in.Description == "" {
		return validationError("description is required")
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return validationError("start and end are required")
	}
	if !in.End.After(in.Start) {
		return constraintViolation("event end must be after start", nil)
	}
	return nil
}

func parseAudience(value string) (store.Audience, error) {
	switch store.Audience(value) {
	case "":
		return store.AudienceAll, nil
	case store.AudienceStudents, store.AudienceTeachers, store.AudienceAll, store.AudienceClassTeachers:
		return store.Audience(value), nil
	}
	return "", validationError(fmt.Sprintf("unknown audience %q", value))
}

func parseTeachingAffected(value string) (store.TeachingAffected, error) {
	switch store.TeachingAffected(value) {
	case "":
		return store.TeachingAffectedNo, nil
	case store.TeachingAffectedYes, store.TeachingAffectedNo, store.TeachingAffectedPartial:
		return store.TeachingAffected(value), nil
	}
	return "", validationError(fmt.Sprintf("unknown teachingAffected %q", value))
}

// CreateEvent opens a new draft owned by the actor.
func (s *Service) CreateEvent(ctx context.Context, actor Session, in EventInput) (store.Event, error) {
	if err := in.validate(); err != nil {
		return store.Event{}, err
	}
	aud, err := parseAudience(in.Audience)
	if err != nil {
		return store.Event{}, err
	}
	teaching, err := parseTeachingAffected(in.TeachingAffected)
	if err != nil {
		return store.Event{}, err
	}

	event := store.Event{
		ID:               util.NewUUID(),
		AuthorID:         actor.UserID,
		State:            store.EventStateDraft,
		Description:      in.Description,
		DescriptionLong:  in.DescriptionLong,
		Location:         in.Location,
		Start:            in.Start,
		End:              in.End,
		Audience:         aud,
		TeachingAffected: teaching,
		Classes:          in.Classes,
		ClassGroups:      in.ClassGroups,
		DepartmentIDs:    in.DepartmentIDs,
		GroupIDs:         in.GroupIDs,
		Meta:             in.Meta,
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return store.Event{}, err
	}
	return s.store.GetEvent(ctx, event.ID)
}

// UpdateEvent rewrites a draft's content. Published and refused versions
// are immutable; a published event is changed by opening a revision.
func (s *Service) UpdateEvent(ctx context.Context, actor Session, eventID string, in EventInput) (store.Event, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return store.Event{}, err
	}
	if event.AuthorID != actor.UserID && !s.isAdmin(actor) {
		return store.Event{}, forbidden("only the author or an admin may edit")
	}
	if event.State != store.EventStateDraft {
		return store.Event{}, invalidTransition("only drafts can be edited; open a revision of a published event")
	}
	if err := in.validate(); err != nil {
		return store.Event{}, err
	}
	aud, err := parseAudience(in.Audience)
	if err != nil {
		return store.Event{}, err
	}
	teaching, err := parseTeachingAffected(in.TeachingAffected)
	if err != nil {
		return store.Event{}, err
	}

	event.Description = in.Description
	event.DescriptionLong = in.DescriptionLong
	event.Location = in.Location
	event.Start = in.Start
	event.End = in.End
	event.Audience = aud
	event.TeachingAffected = teaching
	event.Classes = in.Classes
	event.ClassGroups = in.ClassGroups
	event.DepartmentIDs = in.DepartmentIDs
	event.GroupIDs = in.GroupIDs
	event.Meta = mergeMeta(event.Meta, in.Meta)

	if err := s.store.UpdateDraft(ctx, event); err != nil {
		return store.Event{}, err
	}
	return s.store.GetEvent(ctx, event.ID)
}

// mergeMeta applies patch keys over the existing meta document.
func mergeMeta(existing, patch json.RawMessage) json.RawMessage {
	if len(patch) == 0 {
		return existing
	}
	var base map[string]any
	if err := json.Unmarshal(existing, &base); err != nil || base == nil {
		base = map[string]any{}
	}
	var overlay map[string]any
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return existing
	}
	for key, value := range overlay {
		if value == nil {
			delete(base, key)
			continue
		}
		base[key] = value
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return existing
	}
	return merged
}

// CreateRevision opens a draft child of a published event. Publishing the
// draft later swaps its content onto the stable anchor id.
func (s *Service) CreateRevision(ctx context.Context, actor Session, publishedID string) (store.Event, error) {
	published, err := s.loadEvent(ctx, publishedID)
	if err != nil {
		return store.Event{}, err
	}
	if published.State != store.EventStatePublished {
		return store.Event{}, invalidTransition("revisions can only be opened on a published event")
	}

	revision := published
	revision.ID = util.NewUUID()
	revision.AuthorID = actor.UserID
	revision.State = store.EventStateDraft
	revision.ParentID = &published.ID
	revision.Cloned = false
	revision.JobID = nil
	if err := s.store.InsertEvent(ctx, revision); err != nil {
		return store.Event{}, err
	}
	return s.store.GetEvent(ctx, revision.ID)
}

// CloneEvent copies an event into a fresh draft lineage. Provenance points
// at the current published version of the origin lineage.
func (s *Service) CloneEvent(ctx context.Context, actor Session, eventID string) (store.Event, error) {
	source, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return store.Event{}, err
	}

	originID := source.ID
	if source.ParentID != nil {
		originID, err = s.store.RootAncestor(ctx, source.ID)
		if err != nil {
			return store.Event{}, s.mapNotFound(err, "lineage root not found")
		}
	}

	clone := source
	clone.ID = util.NewUUID()
	clone.AuthorID = actor.UserID
	clone.State = store.EventStateDraft
	clone.ParentID = nil
	clone.ClonedFromID = &originID
	clone.Cloned = true
	clone.JobID = nil
	if err := s.store.InsertEvent(ctx, clone); err != nil {
		return store.Event{}, err
	}
	return s.store.GetEvent(ctx, clone.ID)
}

// ListEventsFor applies visibility: anonymous callers see published events
// only, users additionally see their own, admins see everything.
func (s *Service) ListEventsFor(ctx context.Context, actor *Session, filter store.EventFilter) ([]store.Event, error) {
	if actor != nil && s.isAdmin(*actor) {
		return s.store.ListEvents(ctx, filter)
	}

	publishedFilter := filter
	publishedFilter.States = []store.EventState{store.EventStatePublished}
	publishedFilter.AuthorID = ""
	events, err := s.store.ListEvents(ctx, publishedFilter)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return events, nil
	}

	ownFilter := filter
	ownFilter.AuthorID = actor.UserID
	own, err := s.store.ListEvents(ctx, ownFilter)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		seen[event.ID] = struct{}{}
	}
	for _, event := range own {
		if _, dup := seen[event.ID]; dup {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// EventDetail is an event with its lineage children.
type EventDetail struct {
	Event    store.Event
	Children []store.Event
}

// GetEventDetail loads an event and, for a published anchor, its version
// subtree. Unpublished events are only visible to their author and admins.
func (s *Service) GetEventDetail(ctx context.Context, actor *Session, eventID string) (EventDetail, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return EventDetail{}, err
	}
	if event.State != store.EventStatePublished {
		if actor == nil || (event.AuthorID != actor.UserID && !s.isAdmin(*actor)) {
			return EventDetail{}, notFound("event not found")
		}
	}

	detail := EventDetail{Event: event}
	if event.ParentID == nil {
		canSeeChildren := actor != nil && (s.isAdmin(*actor) || event.AuthorID == actor.UserID)
		if canSeeChildren {
			detail.Children, err = s.store.Descendants(ctx, event.ID)
			if err != nil {
				return EventDetail{}, err
			}
		}
	}
	return detail, nil
}

// DeleteEvent hard-deletes drafts and soft-deletes everything else.
// Published and refused versions are part of the audit trail, so only
// admins may retire them, and only by soft delete.
func (s *Service) DeleteEvent(ctx context.Context, actor Session, eventID string) error {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return err
	}

	if event.State == store.EventStateDraft {
		if event.AuthorID != actor.UserID && !s.isAdmin(actor) {
			return forbidden("only the author or an admin may delete a draft")
		}
		return s.store.HardDeleteEvent(ctx, event.ID)
	}

	if !s.isAdmin(actor) {
		return forbidden("only admins may retire published or refused events")
	}
	if err := s.store.SoftDeleteEvent(ctx, event.ID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteEvent(event.ID)
	}
	return nil
}

// ImportEvents runs a CSV bulk import for the actor.
func (s *Service) ImportEvents(ctx context.Context, actor Session, filename string, data []byte) (store.Job, error) {
	if s.importer == nil {
		return store.Job{}, validationError("import is not available")
	}
	if len(data) == 0 {
		return store.Job{}, validationError("empty upload")
	}
	return s.importer.Run(ctx, actor.UserID, filename, data)
}

// GetJobFor returns an import job, owner or admin only.
func (s *Service) GetJobFor(ctx context.Context, actor Session, jobID string) (store.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return store.Job{}, s.mapNotFound(err, "job not found")
	}
	if job.UserID != actor.UserID && !s.isAdmin(actor) {
		return store.Job{}, forbidden("not your job")
	}
	return job, nil
}

// ListJobsFor lists the actor's import jobs.
func (s *Service) ListJobsFor(ctx context.Context, actor Session) ([]store.Job, error) {
	return s.store.ListJobs(ctx, actor.UserID)
}

// EventHistory lists the audit commits of an event's lineage.
func (s *Service) EventHistory(ctx context.Context, actor Session, eventID string) ([]audit.CommitInfo, error) {
	event, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.AuthorID != actor.UserID && !s.isAdmin(actor) {
		return nil, forbidden("only the author or an admin may view history")
	}
	if s.audit == nil {
		return []audit.CommitInfo{}, nil
	}

	anchorID := event.ID
	if event.ParentID != nil {
		anchorID, err = s.store.RootAncestor(ctx, event.ID)
		if err != nil {
			return nil, s.mapNotFound(err, "lineage root not found")
		}
	}
	return s.audit.History(anchorID, 100)
}

// ExportCalendar renders published events (optionally one event group) as
// an ICS feed.
func (s *Service) ExportCalendar(ctx context.Context, groupID string) (*export.Result, error) {
	filter := store.EventFilter{
		States:  []store.EventState{store.EventStatePublished},
		GroupID: groupID,
	}
	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	name := "agenda"
	if groupID != "" {
		group, err := s.store.GetEventGroup(ctx, groupID)
		if err != nil {
			return nil, s.mapNotFound(err, "event group not found")
		}
		name = group.Name
	}
	return export.ExportICS(events, name)
}

// ExportEventPDF renders a printable sheet for one event.
func (s *Service) ExportEventPDF(ctx context.Context, actor *Session, eventID string) (*export.Result, error) {
	detail, err := s.GetEventDetail(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	return export.ExportPDF(detail.Event)
}

// SearchEvents runs a full-text query over published events and groups.
func (s *Service) SearchEvents(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	q.PublishedOnly = true
	return s.search.Search(q)
}
