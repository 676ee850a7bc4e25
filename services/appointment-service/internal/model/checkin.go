package model

import "time"

type TokenStatus string

const (
	TokenGenerated TokenStatus = "generated"
	TokenScanned   TokenStatus = "scanned"
)

type CheckInToken struct {
	ID            string      `json:"id"`
	AppointmentID string      `json:"appointment_id"`
	StudentID     string      `json:"student_id"`
	Nonce         string      `json:"nonce"`
	Payload       string      `json:"payload"`
	Checksum      string      `json:"checksum"`
	Status        TokenStatus `json:"status"`
	ExpiresAt     time.Time   `json:"expires_at"`
	ScannedAt     *time.Time  `json:"scanned_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
