package model

import "time"

// MedicalRecord is created by a doctor for a registered patient. Only
// LabResultsRef is mutable after creation, and only by a lab actor. The
// reference is an opaque content locator (e.g. a hash), never interpreted.
type MedicalRecord struct {
	ID            uint64    `db:"id" json:"id"`
	Patient       Identity  `db:"patient_address" json:"patient_address"`
	Doctor        Identity  `db:"doctor_address" json:"doctor_address"`
	Diagnosis     string    `db:"diagnosis" json:"diagnosis"`
	Prescription  string    `db:"prescription" json:"prescription"`
	LabResultsRef string    `db:"lab_results_ref" json:"lab_results_ref"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type AddMedicalRecordRequest struct {
	PatientAddress string `json:"patient_address" binding:"required"`
	Diagnosis      string `json:"diagnosis" binding:"required,max=2000"`
	Prescription   string `json:"prescription" binding:"max=2000"`
	LabResultsRef  string `json:"lab_results_ref" binding:"max=256"`
}

type UpdateLabResultsRequest struct {
	LabResultsRef string `json:"lab_results_ref" binding:"required,max=256"`
}
