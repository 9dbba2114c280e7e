// Package store holds the persisted document of staff accounts, voter records
// and settings. Every mutation is a read-modify-write of the whole document
// executed as one serialized critical section.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kenvote/registry/internal/domain"
)

// Document is the complete persisted state.
type Document struct {
	Accounts []domain.StaffAccount `json:"users"`
	Voters   []domain.VoterRecord  `json:"voters"`
	Settings domain.Settings       `json:"settings"`
}

// Store gives transactional access to the Document.
type Store interface {
	// View runs fn against a consistent snapshot. Changes made by fn are discarded.
	View(ctx context.Context, fn func(doc *Document) error) error

	// Update runs fn inside the store's single-writer critical section and
	// persists the document if fn returns nil. An error from fn is returned
	// unchanged and nothing is written.
	Update(ctx context.Context, fn func(doc *Document) error) error
}

// NewDocument returns the state of an empty store: no records, registration open.
func NewDocument() *Document {
	return &Document{
		Accounts: []domain.StaffAccount{},
		Voters:   []domain.VoterRecord{},
		Settings: domain.Settings{RegistrationOpen: true},
	}
}

func decodeDocument(data []byte) (*Document, error) {
	if len(data) == 0 {
		return NewDocument(), nil
	}
	doc := &Document{Settings: domain.Settings{RegistrationOpen: true}}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Accounts == nil {
		doc.Accounts = []domain.StaffAccount{}
	}
	if doc.Voters == nil {
		doc.Voters = []domain.VoterRecord{}
	}
	return doc, nil
}

func encodeDocument(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// FindVoter returns the voter with the given registration number.
func (d *Document) FindVoter(regNo string) (*domain.VoterRecord, int) {
	for i := range d.Voters {
		if d.Voters[i].RegistrationNumber == regNo {
			return &d.Voters[i], i
		}
	}
	return nil, -1
}

// FindVoterByNationalID returns the voter registered under a national id.
func (d *Document) FindVoterByNationalID(nationalID string) *domain.VoterRecord {
	for i := range d.Voters {
		if d.Voters[i].NationalID == nationalID {
			return &d.Voters[i]
		}
	}
	return nil
}

// HasRegistrationNumber reports whether regNo is already allocated.
func (d *Document) HasRegistrationNumber(regNo string) bool {
	v, _ := d.FindVoter(regNo)
	return v != nil
}

// FindAccount returns the account with the given id.
func (d *Document) FindAccount(id string) (*domain.StaffAccount, int) {
	for i := range d.Accounts {
		if d.Accounts[i].ID == id {
			return &d.Accounts[i], i
		}
	}
	return nil, -1
}

// FindAccountByUsername returns the account with the given username.
func (d *Document) FindAccountByUsername(username string) *domain.StaffAccount {
	for i := range d.Accounts {
		if d.Accounts[i].Username == username {
			return &d.Accounts[i]
		}
	}
	return nil
}

// FindAccountByToken returns the account holding the session token.
func (d *Document) FindAccountByToken(token string) *domain.StaffAccount {
	if token == "" {
		return nil
	}
	for i := range d.Accounts {
		if d.Accounts[i].SessionToken == token {
			return &d.Accounts[i]
		}
	}
	return nil
}
