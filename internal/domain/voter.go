package domain

import "time"

// VoterRecord is a registered voter. Confirmed moves from false to true
// exactly once and never back.
type VoterRecord struct {
	ID                 string     `json:"id"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	NationalID         string     `json:"national_id"`
	Phone              string     `json:"phone"`
	Email              string     `json:"email"`
	County             string     `json:"county"`
	SubCounty          string     `json:"sub_county"`
	Division           string     `json:"division"`
	Ward               string     `json:"ward"`
	PhotoRef           string     `json:"photo_ref,omitempty"`
	RegistrationNumber string     `json:"registration_number"`
	Confirmed          bool       `json:"confirmed"`
	ConfirmedBy        string     `json:"confirmed_by,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// VoterState is the vote-marking state of a record.
type VoterState string

const (
	StateUnconfirmed VoterState = "UNCONFIRMED"
	StateConfirmed   VoterState = "CONFIRMED"
)

// State returns the record's vote-marking state.
func (v *VoterRecord) State() VoterState {
	if v.Confirmed {
		return StateConfirmed
	}
	return StateUnconfirmed
}

// ScannerView is what a polling-station operator sees after a scan.
type ScannerView struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	NationalID         string `json:"national_id"`
	RegistrationNumber string `json:"registration_number"`
}

// ScannerView projects the fields shown on the scanner screen.
func (v *VoterRecord) ScannerView() ScannerView {
	return ScannerView{
		FirstName:          v.FirstName,
		LastName:           v.LastName,
		NationalID:         v.NationalID,
		RegistrationNumber: v.RegistrationNumber,
	}
}

// RegistrationInput is a registration submission.
type RegistrationInput struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	County     string `json:"county"`
	SubCounty  string `json:"sub_county"`
	Division   string `json:"division"`
	Ward       string `json:"ward"`
}

// Settings holds process-wide switches.
type Settings struct {
	RegistrationOpen bool `json:"registration_open"`
}

// VoterCard is the printable card issued on registration.
type VoterCard struct {
	PDF    []byte // 360x230pt card
	QRCode []byte // PNG of the card's QR payload
}
