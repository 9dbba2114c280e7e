package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID string, typ EventType, actor string, payload any, at time.Time) EventDraft {
	raw, _ := json.Marshal(payload)
	return EventDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     typ,
		Actor:         actor,
		Payload:       raw,
		OccurredAt:    at,
	}
}

// NewVoterRegisteredEvent announces a newly accepted registration.
// The payload carries no contact details.
func NewVoterRegisteredEvent(rec *VoterRecord) EventDraft {
	return newDraft(AggregateVoter, rec.RegistrationNumber, EventVoterRegistered, "", map[string]string{
		"registration_number": rec.RegistrationNumber,
		"county":              rec.County,
		"sub_county":          rec.SubCounty,
		"ward":                rec.Ward,
	}, rec.CreatedAt)
}

// NewVoterConfirmedEvent announces that a voter has been marked as voted.
func NewVoterConfirmedEvent(rec *VoterRecord) EventDraft {
	at := time.Now().UTC()
	if rec.ConfirmedAt != nil {
		at = *rec.ConfirmedAt
	}
	return newDraft(AggregateVoter, rec.RegistrationNumber, EventVoterConfirmed, rec.ConfirmedBy, map[string]string{
		"registration_number": rec.RegistrationNumber,
		"county":              rec.County,
	}, at)
}

// NewVoterDeletedEvent records removal of a voter record by staff.
func NewVoterDeletedEvent(regNo, actor string, at time.Time) EventDraft {
	return newDraft(AggregateVoter, regNo, EventVoterDeleted, actor, map[string]string{
		"registration_number": regNo,
	}, at)
}

// NewRegistrationToggledEvent records a change of the registration window.
func NewRegistrationToggledEvent(open bool, actor string, at time.Time) EventDraft {
	return newDraft(AggregateSettings, "registration", EventRegistrationToggled, actor, map[string]bool{
		"registration_open": open,
	}, at)
}

// NewAccountEvent records a staff account administration action.
func NewAccountEvent(typ EventType, target *StaffAccount, actor string, at time.Time) EventDraft {
	return newDraft(AggregateAccount, target.ID, typ, actor, map[string]string{
		"username": target.Username,
		"role":     string(target.Role),
	}, at)
}
