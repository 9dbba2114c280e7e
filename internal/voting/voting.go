// Package voting implements the election-day scan: look up a registration
// and mark it voted at most once.
package voting

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/metrics"
	"github.com/kenvote/registry/internal/store"
)

// Service runs the UNCONFIRMED -> CONFIRMED transition.
type Service struct {
	store   store.Store
	events  domain.EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a voting service. events may be nil.
func NewService(s store.Store, events domain.EventPublisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &Service{store: s, events: events, metrics: m, logger: logger, now: time.Now}
}

// checkVotable maps a record's state to the scan outcome.
func checkVotable(v *domain.VoterRecord, regNo string) error {
	if v == nil {
		return domain.ErrNotFound("voter", regNo)
	}
	if v.State() == domain.StateConfirmed {
		return domain.ErrAlreadyConfirmed(regNo)
	}
	return nil
}

// Lookup returns the scanner view of a voter who has not voted yet.
func (s *Service) Lookup(ctx context.Context, regNo string) (*domain.ScannerView, error) {
	var view domain.ScannerView
	err := s.store.View(ctx, func(doc *store.Document) error {
		v, _ := doc.FindVoter(regNo)
		if err := checkVotable(v, regNo); err != nil {
			return err
		}
		view = v.ScannerView()
		return nil
	})
	if err != nil {
		if domain.IsCode(err, domain.CodeAlreadyConfirmed) {
			s.metrics.AlreadyVoted()
		}
		return nil, err
	}
	return &view, nil
}

// MarkVoted confirms the voter. The check and the transition happen inside
// one store update, so of any number of concurrent calls for the same
// registration exactly one succeeds and the rest get AlreadyConfirmed.
// actor is nil for the public scanner.
func (s *Service) MarkVoted(ctx context.Context, regNo string, actor *domain.StaffAccount) (*domain.VoterRecord, error) {
	var rec domain.VoterRecord
	err := s.store.Update(ctx, func(doc *store.Document) error {
		v, _ := doc.FindVoter(regNo)
		if err := checkVotable(v, regNo); err != nil {
			return err
		}
		at := s.now().UTC()
		v.Confirmed = true
		v.ConfirmedAt = &at
		if actor != nil {
			v.ConfirmedBy = actor.Username
		}
		rec = *v
		return nil
	})
	if err != nil {
		if domain.IsCode(err, domain.CodeAlreadyConfirmed) {
			s.metrics.AlreadyVoted()
			s.logger.Warn("repeat vote attempt", "registration_number", regNo)
		}
		return nil, err
	}

	s.metrics.VoteMarked()
	s.logger.Info("voter marked as voted",
		"registration_number", regNo,
		"confirmed_by", rec.ConfirmedBy,
	)
	s.events.Publish(ctx, domain.NewVoterConfirmedEvent(&rec))
	return &rec, nil
}

// scanPayload is the JSON encoded in card QR codes.
type scanPayload struct {
	RegistrationNumber string `json:"registration_number"`
	NationalID         string `json:"national_id"`
	// printed by earlier card versions
	LegacyRegNo string `json:"voter_reg_no"`
}

// ParseScanInput extracts a registration number from scanner input: either
// the bare number typed by an operator or the JSON payload of a card's QR.
func ParseScanInput(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", domain.ErrValidation("registration number is required")
	}
	if !strings.HasPrefix(s, "{") {
		return s, nil
	}

	var p scanPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return "", domain.ErrValidation("unreadable QR payload")
	}
	regNo := strings.TrimSpace(p.RegistrationNumber)
	if regNo == "" {
		regNo = strings.TrimSpace(p.LegacyRegNo)
	}
	if regNo == "" {
		return "", domain.ErrValidation("QR payload has no registration number")
	}
	return regNo, nil
}
