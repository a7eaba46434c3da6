package model

import "time"

// Appointment is immutable once created except for the Confirmed flag, which
// transitions false to true exactly once, only by the assigned doctor.
type Appointment struct {
	ID            uint64    `db:"id" json:"id"`
	Patient       Identity  `db:"patient_address" json:"patient_address"`
	Doctor        Identity  `db:"doctor_address" json:"doctor_address"`
	ScheduledTime time.Time `db:"scheduled_time" json:"scheduled_time"`
	Confirmed     bool      `db:"confirmed" json:"confirmed"`
}

type ScheduleAppointmentRequest struct {
	DoctorAddress string    `json:"doctor_address" binding:"required"`
	ScheduledTime time.Time `json:"scheduled_time" binding:"required"`
}

type RegisterIdentityRequest struct {
	Address string `json:"address" binding:"required,max=128"`
}
