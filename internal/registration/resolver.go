// Package registration accepts voter registrations and manages the voter roll.
package registration

import (
	"strings"

	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/store"
)

// Resolve decides whether in may be registered against the current document.
// It returns the submission with its national id trimmed, or the reason for
// rejection. The checks run in a fixed order: closed window, id format, exact
// duplicate, then the name plus contact heuristic.
func Resolve(doc *store.Document, in domain.RegistrationInput) (domain.RegistrationInput, error) {
	if !doc.Settings.RegistrationOpen {
		return in, domain.ErrClosed()
	}

	in.NationalID = strings.TrimSpace(in.NationalID)
	if err := domain.ValidateNationalID(in.NationalID); err != nil {
		return in, domain.ErrValidation(err.Error())
	}

	if doc.FindVoterByNationalID(in.NationalID) != nil {
		return in, domain.ErrDuplicate("national id")
	}

	if findSimilar(doc.Voters, in) != nil {
		return in, domain.ErrDuplicate("similar identity")
	}
	return in, nil
}

type identity struct {
	first, last, phone, email string
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func identityOf(first, last, phone, email string) identity {
	return identity{
		first: normalize(first),
		last:  normalize(last),
		phone: normalize(phone),
		email: normalize(email),
	}
}

// sameContact compares two normalized values, treating blanks as unknown.
func sameContact(a, b string) bool {
	return a != "" && b != "" && a == b
}

// findSimilar returns the first voter with the same normalized first and last
// name and a matching phone or email. Common names sharing a household phone
// will collide; that false-positive rate is accepted.
func findSimilar(voters []domain.VoterRecord, in domain.RegistrationInput) *domain.VoterRecord {
	want := identityOf(in.FirstName, in.LastName, in.Phone, in.Email)
	if want.first == "" && want.last == "" {
		return nil
	}
	for i := range voters {
		v := &voters[i]
		have := identityOf(v.FirstName, v.LastName, v.Phone, v.Email)
		if have.first != want.first || have.last != want.last {
			continue
		}
		if sameContact(have.phone, want.phone) || sameContact(have.email, want.email) {
			return v
		}
	}
	return nil
}
