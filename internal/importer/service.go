package importer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"agenda/api/internal/store"
	"agenda/api/internal/util"
)

type dataStore interface {
	InsertJob(ctx context.Context, item store.Job) error
	UpdateJob(ctx context.Context, jobID string, state store.JobState, logText string) error
	InsertEvent(ctx context.Context, item store.Event) error
}

// Service runs CSV imports: one job per upload, one draft event per
// parsed row.
type Service struct {
	store   dataStore
	archive *Archive
}

// NewService creates an import service. archive may be nil when object
// storage is not configured.
func NewService(store dataStore, archive *Archive) *Service {
	return &Service{store: store, archive: archive}
}

// Run parses the upload and creates draft events owned by the user. The
// returned job carries the final state and a per-line log. A partially
// rejected file still imports its valid rows; the job only fails when
// the file itself is unusable.
func (s *Service) Run(ctx context.Context, userID, filename string, data []byte) (store.Job, error) {
	job := store.Job{
		ID:       util.NewID("job"),
		UserID:   userID,
		State:    store.JobStatePending,
		Filename: filename,
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		return store.Job{}, fmt.Errorf("create import job: %w", err)
	}

	if s.archive != nil {
		if key, err := s.archive.Store(ctx, job.ID, filename, data); err != nil {
			log.Printf("importer: archive %s: %v", filename, err)
		} else {
			log.Printf("importer: archived upload as %s", key)
		}
	}

	rows, rowErrors, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		logText := fmt.Sprintf("import failed: %v", err)
		if updateErr := s.store.UpdateJob(ctx, job.ID, store.JobStateError, logText); updateErr != nil {
			return store.Job{}, fmt.Errorf("update import job: %w", updateErr)
		}
		job.State = store.JobStateError
		job.Log = logText
		return job, nil
	}

	var logLines []string
	imported := 0
	for _, row := range rows {
		jobID := job.ID
		event := store.Event{
			ID:               util.NewID("evt"),
			AuthorID:         userID,
			State:            store.EventStateDraft,
			Description:      row.Description,
			DescriptionLong:  row.DescriptionLong,
			Location:         row.Location,
			Start:            row.Start,
			End:              row.End,
			Audience:         row.Audience,
			TeachingAffected: row.TeachingAffected,
			Classes:          row.Classes,
			ClassGroups:      row.ClassGroups,
			JobID:            &jobID,
		}
		if err := s.store.InsertEvent(ctx, event); err != nil {
			logLines = append(logLines, fmt.Sprintf("line %d: insert failed: %v", row.Line, err))
			continue
		}
		imported++
	}
	for _, rowError := range rowErrors {
		logLines = append(logLines, rowError.String())
	}
	logLines = append(logLines, fmt.Sprintf("imported %d of %d rows", imported, len(rows)+len(rowErrors)))

	state := store.JobStateDone
	if imported == 0 && len(rowErrors) > 0 {
		state = store.JobStateError
	}
	logText := strings.Join(logLines, "\n")
	if err := s.store.UpdateJob(ctx, job.ID, state, logText); err != nil {
		return store.Job{}, fmt.Errorf("update import job: %w", err)
	}

	job.State = state
	job.Log = logText
	return job, nil
}
