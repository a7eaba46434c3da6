package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Audit event types, one per successful mutating call.
const (
	EventPatientRegistered    = "PATIENT_REGISTERED"
	EventDoctorRegistered     = "DOCTOR_REGISTERED"
	EventLabRegistered        = "LAB_REGISTERED"
	EventAppointmentScheduled = "APPOINTMENT_SCHEDULED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventMedicalRecordAdded   = "MEDICAL_RECORD_ADDED"

	// EventAccessGranted is declared but emitted by no operation yet.
	EventAccessGranted = "ACCESS_GRANTED"
)

// OutboxEvent is an audit notification staged in the same transaction as the
// mutation it describes, and published to the broker asynchronously.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// NewOutboxEvent builds a pending event carrying the given payload.
func NewOutboxEvent(eventType string, payload interface{}) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   body,
		Status:    OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
