package services

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/isdelr/mealie-backup/internal/models"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(runID, eventType, level, message string, backup *string) error
	GetRecentEvents(limit int) ([]models.Event, error)
}

// Publisher receives every recorded event.
type Publisher interface {
	PublishEvent(event models.Event)
}

// EventService provides business logic for the run ledger.
type EventService struct {
	db        *sql.DB
	publisher Publisher
}

// NewEventService creates a new EventService. publisher may be nil.
func NewEventService(db *sql.DB, publisher Publisher) *EventService {
	return &EventService{db: db, publisher: publisher}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(runID, eventType, level, message string, backup *string) error {
	event := models.Event{
		ID:        uuid.New().String(),
		RunID:     runID,
		Type:      eventType,
		Level:     level,
		Message:   message,
		Backup:    backup,
		CreatedAt: time.Now().UTC(),
	}

	stmt, err := s.db.Prepare("INSERT INTO events (id, run_id, type, level, message, backup, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	if _, err := stmt.Exec(event.ID, event.RunID, event.Type, event.Level, event.Message, event.Backup, event.CreatedAt); err != nil {
		return err
	}

	if s.publisher != nil {
		s.publisher.PublishEvent(event)
	}
	return nil
}

// GetRecentEvents retrieves the most recent events from the database.
func (s *EventService) GetRecentEvents(limit int) ([]models.Event, error) {
	rows, err := s.db.Query("SELECT id, run_id, type, level, message, backup, created_at FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.RunID, &event.Type, &event.Level, &event.Message, &event.Backup, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
