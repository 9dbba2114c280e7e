package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/metrics"
	"github.com/kenvote/registry/internal/store"
)

// PhotoStore keeps voter photos outside the document.
type PhotoStore interface {
	Save(ctx context.Context, data []byte) (ref string, err error)
	Delete(ctx context.Context, ref string) error
}

// CardRenderer produces the printable card for a record.
type CardRenderer interface {
	Render(ctx context.Context, rec *domain.VoterRecord) (*domain.VoterCard, error)
}

// Registration is the result of a successful Register call. Card is nil when
// rendering failed; the record is committed regardless.
type Registration struct {
	Record domain.VoterRecord
	Card   *domain.VoterCard
}

// Service owns the voter roll.
type Service struct {
	store   store.Store
	alloc   *Allocator
	photos  PhotoStore
	cards   CardRenderer
	events  domain.EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a registration service. photos, cards and events may
// be nil.
func NewService(
	s store.Store,
	alloc *Allocator,
	photos PhotoStore,
	cards CardRenderer,
	events domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &Service{
		store:   s,
		alloc:   alloc,
		photos:  photos,
		cards:   cards,
		events:  events,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Status reports whether registration is open.
func (s *Service) Status(ctx context.Context) (bool, error) {
	var open bool
	err := s.store.View(ctx, func(doc *store.Document) error {
		open = doc.Settings.RegistrationOpen
		return nil
	})
	return open, err
}

// Register validates, deduplicates, numbers and persists a voter in a single
// store update. photo is optional.
func (s *Service) Register(ctx context.Context, in domain.RegistrationInput, photo []byte) (*Registration, error) {
	start := time.Now()

	open, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	if !open {
		s.metrics.Registration(metrics.OutcomeClosed)
		return nil, domain.ErrClosed()
	}

	var photoRef string
	if len(photo) > 0 {
		if s.photos == nil {
			return nil, domain.ErrValidation("photo uploads are not enabled")
		}
		photoRef, err = s.photos.Save(ctx, photo)
		if err != nil {
			s.metrics.Registration(outcomeOf(err))
			return nil, err
		}
	}

	var rec domain.VoterRecord
	err = s.store.Update(ctx, func(doc *store.Document) error {
		accepted, err := Resolve(doc, in)
		if err != nil {
			return err
		}
		regNo, err := s.alloc.Allocate(doc.HasRegistrationNumber)
		if err != nil {
			return err
		}
		rec = newRecord(accepted, regNo, photoRef, s.now())
		doc.Voters = append([]domain.VoterRecord{rec}, doc.Voters...)
		return nil
	})
	if err != nil {
		s.discardPhoto(ctx, photoRef)
		s.metrics.Registration(outcomeOf(err))
		return nil, err
	}

	s.metrics.Registration(metrics.OutcomeAccepted)
	s.logger.Info("voter registered",
		"registration_number", rec.RegistrationNumber,
		"county", rec.County,
	)
	s.events.Publish(ctx, domain.NewVoterRegisteredEvent(&rec))

	out := &Registration{Record: rec}
	if s.cards != nil {
		c, err := s.cards.Render(ctx, &rec)
		if err != nil {
			s.logger.Error("card rendering failed",
				"registration_number", rec.RegistrationNumber,
				"error", err,
			)
		} else {
			out.Card = c
		}
	}
	s.metrics.ObserveRegistration(start)
	return out, nil
}

func newRecord(in domain.RegistrationInput, regNo, photoRef string, now time.Time) domain.VoterRecord {
	return domain.VoterRecord{
		ID:                 uuid.NewString(),
		FirstName:          in.FirstName,
		LastName:           in.LastName,
		NationalID:         in.NationalID,
		Phone:              in.Phone,
		Email:              in.Email,
		County:             in.County,
		SubCounty:          in.SubCounty,
		Division:           in.Division,
		Ward:               in.Ward,
		PhotoRef:           photoRef,
		RegistrationNumber: regNo,
		CreatedAt:          now.UTC(),
	}
}

func (s *Service) discardPhoto(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.photos.Delete(ctx, ref); err != nil {
		s.logger.Warn("photo cleanup failed", "photo_ref", ref, "error", err)
	}
}

func outcomeOf(err error) string {
	appErr, ok := domain.AsAppError(err)
	if !ok {
		return metrics.OutcomeError
	}
	switch appErr.Code {
	case domain.CodeDuplicate:
		return metrics.OutcomeDuplicate
	case domain.CodeValidation:
		return metrics.OutcomeInvalid
	case domain.CodeClosed:
		return metrics.OutcomeClosed
	case domain.CodeAllocationExhausted:
		return metrics.OutcomeExhausted
	default:
		return metrics.OutcomeError
	}
}

// Lookup returns the record with the given registration number.
func (s *Service) Lookup(ctx context.Context, regNo string) (*domain.VoterRecord, error) {
	var rec *domain.VoterRecord
	err := s.store.View(ctx, func(doc *store.Document) error {
		v, _ := doc.FindVoter(regNo)
		if v == nil {
			return domain.ErrNotFound("voter", regNo)
		}
		rec = v
		return nil
	})
	return rec, err
}

// LookupByNationalID finds a registration by national id, for voters who
// lost their card.
func (s *Service) LookupByNationalID(ctx context.Context, nationalID string) (*domain.VoterRecord, error) {
	var rec *domain.VoterRecord
	err := s.store.View(ctx, func(doc *store.Document) error {
		v := doc.FindVoterByNationalID(nationalID)
		if v == nil {
			return domain.ErrNotFound("voter with national id", nationalID)
		}
		rec = v
		return nil
	})
	return rec, err
}

// List returns the voter roll, newest first. An actor with a county sees
// only voters registered in that county.
func (s *Service) List(ctx context.Context, actor *domain.StaffAccount) ([]domain.VoterRecord, error) {
	if err := auth.Authorize(actor, domain.RoleSuperuser); err != nil {
		return nil, err
	}
	var rows []domain.VoterRecord
	err := s.store.View(ctx, func(doc *store.Document) error {
		rows = make([]domain.VoterRecord, 0, len(doc.Voters))
		for _, v := range doc.Voters {
			if actor.County != "" && v.County != actor.County {
				continue
			}
			rows = append(rows, v)
		}
		return nil
	})
	return rows, err
}

// Delete removes a voter record.
func (s *Service) Delete(ctx context.Context, actor *domain.StaffAccount, regNo string) error {
	if err := auth.Authorize(actor, domain.RoleSuperuser); err != nil {
		return err
	}
	var removed domain.VoterRecord
	err := s.store.Update(ctx, func(doc *store.Document) error {
		v, i := doc.FindVoter(regNo)
		if v == nil {
			return domain.ErrNotFound("voter", regNo)
		}
		removed = *v
		doc.Voters = append(doc.Voters[:i], doc.Voters[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("voter deleted", "registration_number", regNo, "actor", actor.Username)
	s.discardPhoto(ctx, removed.PhotoRef)
	s.events.Publish(ctx, domain.NewVoterDeletedEvent(regNo, actor.Username, s.now().UTC()))
	return nil
}

// Card re-renders the printable card for a registration.
func (s *Service) Card(ctx context.Context, actor *domain.StaffAccount, regNo string) (*domain.VoterRecord, *domain.VoterCard, error) {
	if err := auth.Authorize(actor, domain.RoleUser); err != nil {
		return nil, nil, err
	}
	rec, err := s.Lookup(ctx, regNo)
	if err != nil {
		return nil, nil, err
	}
	if s.cards == nil {
		return nil, nil, domain.ErrInternal("card rendering is not configured", nil)
	}
	c, err := s.cards.Render(ctx, rec)
	if err != nil {
		return nil, nil, domain.ErrInternal("render card", err)
	}
	return rec, c, nil
}

// Toggle flips the registration window. The actor must be a superadmin and
// re-enter their password. Returns the new state.
func (s *Service) Toggle(ctx context.Context, actor *domain.StaffAccount, password string) (bool, error) {
	if err := auth.Authorize(actor, domain.RoleSuperadmin); err != nil {
		return false, err
	}
	if password == "" {
		return false, domain.ErrValidation("password is required")
	}

	// bcrypt is slow; check outside the write lock.
	var hash string
	err := s.store.View(ctx, func(doc *store.Document) error {
		a, _ := doc.FindAccount(actor.ID)
		if a == nil {
			return domain.ErrUnauthorized("account no longer exists")
		}
		hash = a.PasswordHash
		return nil
	})
	if err != nil {
		return false, err
	}
	if !auth.CheckPassword(hash, password) {
		return false, domain.ErrForbidden("password incorrect")
	}

	var open bool
	err = s.store.Update(ctx, func(doc *store.Document) error {
		a, _ := doc.FindAccount(actor.ID)
		if a == nil || a.PasswordHash != hash {
			return domain.ErrForbidden("password incorrect")
		}
		doc.Settings.RegistrationOpen = !doc.Settings.RegistrationOpen
		open = doc.Settings.RegistrationOpen
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("registration toggled", "open", open, "actor", actor.Username)
	s.events.Publish(ctx, domain.NewRegistrationToggledEvent(open, actor.Username, s.now().UTC()))
	return open, nil
}
