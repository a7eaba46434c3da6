package model

// PatientProfile is created exactly once, by the patient's own
// self-registration call, and never deleted.
type PatientProfile struct {
	Address     Identity `db:"address" json:"address"`
	Name        string   `db:"name" json:"name"`
	Age         int      `db:"age" json:"age"`
	ContactInfo string   `db:"contact_info" json:"contact_info"`
	Registered  bool     `db:"registered" json:"registered"`
}

type RegisterPatientRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Age         int    `json:"age" binding:"required,gte=0,lte=150"`
	ContactInfo string `json:"contact_info" binding:"max=500"`
}
