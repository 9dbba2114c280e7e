package handler

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/registration"
)

// VoterHandler serves registration and voter record endpoints.
type VoterHandler struct {
	registry      *registration.Service
	maxPhotoBytes int64
}

// NewVoterHandler creates a new VoterHandler.
func NewVoterHandler(registry *registration.Service, maxPhotoBytes int64) *VoterHandler {
	return &VoterHandler{registry: registry, maxPhotoBytes: maxPhotoBytes}
}

// registerResponse mirrors what the registration desk prints from.
type registerResponse struct {
	Record    domain.VoterRecord `json:"record"`
	PDFBase64 string             `json:"pdf_base64,omitempty"`
	QRDataURL string             `json:"qr_data_url,omitempty"`
}

// Status handles GET /registration/status.
func (h *VoterHandler) Status(w http.ResponseWriter, r *http.Request) {
	open, err := h.registry.Status(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"open": open})
}

// Register handles POST /register. Accepts multipart/form-data with an
// optional "photo" file, or a plain JSON body.
func (h *VoterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var (
		input domain.RegistrationInput
		photo []byte
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var err error
		input, photo, err = h.readMultipart(w, r)
		if err != nil {
			RespondError(w, err)
			return
		}
	} else if err := DecodeJSON(r, &input); err != nil {
		RespondBadBody(w)
		return
	}

	result, err := h.registry.Register(r.Context(), input, photo)
	if err != nil {
		RespondError(w, err)
		return
	}

	resp := registerResponse{Record: result.Record}
	if result.Card != nil {
		resp.PDFBase64 = base64.StdEncoding.EncodeToString(result.Card.PDF)
		if len(result.Card.QRCode) > 0 {
			resp.QRDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(result.Card.QRCode)
		}
	}
	RespondJSON(w, http.StatusCreated, resp)
}

func (h *VoterHandler) readMultipart(w http.ResponseWriter, r *http.Request) (domain.RegistrationInput, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxPhotoBytes+maxJSONBody)
	if err := r.ParseMultipartForm(h.maxPhotoBytes + maxJSONBody); err != nil {
		return domain.RegistrationInput{}, nil, domain.ErrValidation("invalid form or photo too large")
	}

	nationalID := r.FormValue("national_id")
	if nationalID == "" {
		nationalID = r.FormValue("kenyan_id")
	}
	input := domain.RegistrationInput{
		FirstName:  r.FormValue("first_name"),
		LastName:   r.FormValue("last_name"),
		NationalID: nationalID,
		Phone:      r.FormValue("phone"),
		Email:      r.FormValue("email"),
		County:     r.FormValue("county"),
		SubCounty:  r.FormValue("sub_county"),
		Division:   r.FormValue("division"),
		Ward:       r.FormValue("ward"),
	}

	file, _, err := r.FormFile("photo")
	if err == http.ErrMissingFile {
		return input, nil, nil
	}
	if err != nil {
		return input, nil, domain.ErrValidation("unreadable photo")
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, h.maxPhotoBytes+1)); err != nil {
		return input, nil, domain.ErrValidation("unreadable photo")
	}
	if int64(buf.Len()) > h.maxPhotoBytes {
		return input, nil, domain.ErrValidation(fmt.Sprintf("photo exceeds %d bytes", h.maxPhotoBytes))
	}
	return input, buf.Bytes(), nil
}

// Lookup handles GET /lookup/{regno}.
func (h *VoterHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	rec, err := h.registry.Lookup(r.Context(), chi.URLParam(r, "regno"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"record": rec})
}

// ByNationalID handles GET /voter/by-id?national_id=.
func (h *VoterHandler) ByNationalID(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("national_id"))
	if id == "" {
		id = strings.TrimSpace(q.Get("kenyan_id"))
	}
	if id == "" {
		RespondError(w, domain.ErrValidation("national_id is required"))
		return
	}
	rec, err := h.registry.LookupByNationalID(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"record": rec})
}

// List handles GET /voter/list.
func (h *VoterHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.registry.List(r.Context(), auth.AccountFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

// Delete handles DELETE /voter/{regno}.
func (h *VoterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	regNo := chi.URLParam(r, "regno")
	if err := h.registry.Delete(r.Context(), auth.AccountFromContext(r.Context()), regNo); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "voter deleted"})
}

// Card handles GET /pdf/{regno}.
func (h *VoterHandler) Card(w http.ResponseWriter, r *http.Request) {
	rec, c, err := h.registry.Card(r.Context(), auth.AccountFromContext(r.Context()), chi.URLParam(r, "regno"))
	if err != nil {
		RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="voter_%s.pdf"`, rec.RegistrationNumber))
	w.WriteHeader(http.StatusOK)
	w.Write(c.PDF)
}
