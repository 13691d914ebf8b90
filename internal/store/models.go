package store

import (
	"encoding/json"
	"time"
)

type EventState string

const (
	EventStateDraft     EventState = "DRAFT"
	EventStateReview    EventState = "REVIEW"
	EventStatePublished EventState = "PUBLISHED"
	EventStateRefused   EventState = "REFUSED"
)

type Audience string

const (
	AudienceStudents      Audience = "STUDENTS"
	AudienceTeachers      Audience = "TEACHERS"
	AudienceAll           Audience = "ALL"
	AudienceClassTeachers Audience = "CLASS_TEACHERS"
)

type TeachingAffected string

const (
	TeachingAffectedYes     TeachingAffected = "YES"
	TeachingAffectedNo      TeachingAffected = "NO"
	TeachingAffectedPartial TeachingAffected = "PARTIAL"
)

type Event struct {
	ID               string
	AuthorID         string
	State            EventState
	Description      string
	DescriptionLong  string
	Location         string
	Start            time.Time
	End              time.Time
	Audience         Audience
	TeachingAffected TeachingAffected
	Classes          []string
	ClassGroups      []string
	DepartmentIDs    []string
	GroupIDs         []string
	Meta             json.RawMessage
	ParentID         *string
	ClonedFromID     *string
	Cloned           bool
	JobID            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// PromotionResult is everything a swap touched: the stable published record,
// the relegated previous version and the review siblings forced to REFUSED.
type PromotionResult struct {
	Event           Event
	PreviousVersion *Event
	RefusedSiblings []Event
}

type Department struct {
	ID            string
	Name          string
	Letter        string
	DisplayLetter *string
	ClassLetters  []string
	Color         string
	Department1ID *string
	Department2ID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectiveLetter is the display letter with the plain letter as fallback.
func (d Department) EffectiveLetter() string {
	if d.DisplayLetter != nil && *d.DisplayLetter != "" {
		return *d.DisplayLetter
	}
	return d.Letter
}

type EventGroup struct {
	ID          string
	UserID      string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RegistrationPeriod struct {
	ID              string
	Name            string
	Description     string
	Start           time.Time
	End             time.Time
	EventRangeStart time.Time
	EventRangeEnd   time.Time
	IsOpen          bool
	DepartmentIDs   []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type JobState string

const (
	JobStatePending JobState = "PENDING"
	JobStateDone    JobState = "DONE"
	JobStateError   JobState = "ERROR"
)

type Job struct {
	ID        string
	UserID    string
	State     JobState
	Filename  string
	Log       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
