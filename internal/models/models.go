package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums

// ProficiencyLevel is a CEFR level. A0 is the pre-A1 "absolute beginner" tier.
type ProficiencyLevel string

const (
	LevelA0 ProficiencyLevel = "A0"
	LevelA1 ProficiencyLevel = "A1"
	LevelA2 ProficiencyLevel = "A2"
	LevelB1 ProficiencyLevel = "B1"
	LevelB2 ProficiencyLevel = "B2"
	LevelC1 ProficiencyLevel = "C1"
)

// ProficiencyLevels lists all supported levels in ascending order.
var ProficiencyLevels = []ProficiencyLevel{
	LevelA0, LevelA1, LevelA2, LevelB1, LevelB2, LevelC1,
}

// Valid reports whether the level is one of the supported CEFR levels.
func (p ProficiencyLevel) Valid() bool {
	for _, l := range ProficiencyLevels {
		if p == l {
			return true
		}
	}
	return false
}

type LessonStatus string

const (
	LessonStatusTextOnly LessonStatus = "text_only" // story persisted, no audio yet
	LessonStatusComplete LessonStatus = "complete"  // audio uploaded
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// StabilityHint tunes how conservative speech synthesis is for a speaker.
type StabilityHint string

const (
	StabilityCreative StabilityHint = "creative"
	StabilityNatural  StabilityHint = "natural"
	StabilityRobust   StabilityHint = "robust"
)

// NarratorID is the speaker id every generated lesson must declare.
const NarratorID = "Narrator"

// Speaker is a named role in a lesson's script, mapped to a synthesis voice
// once voice assignment has run.
type Speaker struct {
	ID        string        `json:"id"`
	Gender    Gender        `json:"gender,omitempty"`
	Stability StabilityHint `json:"stability,omitempty"`
	VoiceID   string        `json:"voice_id,omitempty"` // empty until voice assignment
}

// Segment is one speaker-attributed line of the script, in reading order.
type Segment struct {
	SpeakerID    string `json:"speaker_id"`
	Text         string `json:"text"`
	BreakAfterMs int    `json:"break_after_ms,omitempty"` // pause inserted after this line
}

// Question is a comprehension question attached to a lesson.
// Intent is one of "literal", "relational", "pragmatic".
type Question struct {
	Question string `json:"question"`
	Intent   string `json:"intent,omitempty"`
}

// LessonContent is the structured story the generator must produce.
// This is the one JSON shape the pipeline owns and validates strictly;
// it is stored as a JSONB column on the lessons table.
type LessonContent struct {
	Title      string     `json:"title"`
	IsDialogue bool       `json:"is_dialogue"`
	Summary    string     `json:"summary,omitempty"` // compact recap, fed to the next day's generation
	Speakers   []Speaker  `json:"speakers"`
	Segments   []Segment  `json:"segments"`
	Questions  []Question `json:"questions,omitempty"`
}

// Speaker returns the speaker with the given id, if declared.
func (c *LessonContent) Speaker(id string) (*Speaker, bool) {
	for i := range c.Speakers {
		if c.Speakers[i].ID == id {
			return &c.Speakers[i], true
		}
	}
	return nil, false
}

// Narrator returns the Narrator speaker, or the first speaker as a fallback.
func (c *LessonContent) Narrator() *Speaker {
	if s, ok := c.Speaker(NarratorID); ok {
		return s
	}
	if len(c.Speakers) > 0 {
		return &c.Speakers[0]
	}
	return nil
}

// Value implements driver.Valuer so LessonContent maps to a JSONB column.
func (c LessonContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for reading the JSONB column back.
func (c *LessonContent) Scan(value interface{}) error {
	if value == nil {
		*c = LessonContent{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into LessonContent", value)
	}
	return json.Unmarshal(bytes, c)
}

// Models

type User struct {
	ID                uuid.UUID        `json:"id"`
	Email             string           `json:"email"`
	TargetLanguage    string           `json:"target_language"` // BCP 47, e.g. "es-ES"
	NativeLanguage    string           `json:"native_language"`
	ProficiencyLevel  ProficiencyLevel `json:"proficiency_level"`
	Streak            int              `json:"streak"`
	IsConfirmed       bool             `json:"is_confirmed"`
	LastCompletedDate *string          `json:"last_completed_date,omitempty"` // YYYY-MM-DD, UTC
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

type Lesson struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	Title            string           `json:"title"`
	ProficiencyLevel ProficiencyLevel `json:"proficiency_level"`
	Content          LessonContent    `json:"content"`
	Status           LessonStatus     `json:"status"`
	AudioRef         *string          `json:"audio_ref,omitempty"` // set exactly once, when audio upload completes
	CreatedAt        time.Time        `json:"created_at"`
}

type EmailConfirmation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type Job struct {
	ID           uuid.UUID  `json:"id"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	LessonID     *uuid.UUID `json:"lesson_id,omitempty"`
	Type         string     `json:"type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DTOs for API requests/responses

type CreateUserRequest struct {
	Email            string           `json:"email"`
	TargetLanguage   string           `json:"target_language"`
	NativeLanguage   *string          `json:"native_language,omitempty"` // default "en-US"
	ProficiencyLevel ProficiencyLevel `json:"proficiency_level"`
}

type CreateUserResponse struct {
	UserID uuid.UUID `json:"user_id"`
}

type UpdatePreferencesRequest struct {
	TargetLanguage   string           `json:"target_language"`
	ProficiencyLevel ProficiencyLevel `json:"proficiency_level"`
}

type CreateLessonRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type CreateLessonResponse struct {
	JobID uuid.UUID `json:"job_id"`
}

type LessonResponse struct {
	Lesson
	AudioURL *string `json:"audio_url,omitempty"` // signed read URL, present once audio exists
}

type CompleteLessonResponse struct {
	Streak int `json:"streak"`
}
