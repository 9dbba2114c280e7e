package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/registration"
	"github.com/kenvote/registry/internal/store"
	"github.com/kenvote/registry/internal/voting"
)

type stubCards struct{ fail bool }

func (c stubCards) Render(_ context.Context, rec *domain.VoterRecord) (*domain.VoterCard, error) {
	if c.fail {
		return nil, errors.New("font missing")
	}
	return &domain.VoterCard{PDF: []byte("%PDF-" + rec.RegistrationNumber), QRCode: []byte{0x89, 'P', 'N', 'G'}}, nil
}

type memPhotos struct{ saved [][]byte }

func (p *memPhotos) Save(_ context.Context, data []byte) (string, error) {
	p.saved = append(p.saved, data)
	return "photo.png", nil
}

func (p *memPhotos) Delete(context.Context, string) error { return nil }

// newVoterMux routes the voter and scanner handlers. actor, when set, is
// attached to every request as the authenticated account.
func newVoterMux(t *testing.T, cards registration.CardRenderer, photos registration.PhotoStore, actor *domain.StaffAccount) (http.Handler, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	logger := noopLogger()
	registry := registration.NewService(s, registration.NewAllocator(nil, registration.NewSeededSource(7)), photos, cards, nil, nil, logger)
	voters := NewVoterHandler(registry, 1024)
	scanner := NewScannerHandler(voting.NewService(s, nil, nil, logger))

	r := chi.NewRouter()
	if actor != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(auth.WithAccount(req.Context(), actor, "tok")))
			})
		})
	}
	r.Post("/register", voters.Register)
	r.Get("/lookup/{regno}", voters.Lookup)
	r.Get("/voter/by-id", voters.ByNationalID)
	r.Get("/voter/list", voters.List)
	r.Get("/pdf/{regno}", voters.Card)
	r.Post("/scanner/lookup", scanner.Lookup)
	r.Post("/scanner/mark-voted", scanner.MarkVoted)
	r.Post("/voter/confirm", scanner.Confirm)
	return r, s
}

func serve(h http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func registerJSON(t *testing.T, h http.Handler, nationalID string) (int, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"first_name":  "Achieng",
		"last_name":   "Otieno",
		"national_id": nationalID,
		"county":      "Kisumu",
	})
	w := serve(h, http.MethodPost, "/register", "application/json", body)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestVoterHandler_Register(t *testing.T) {
	t.Run("card fields populated", func(t *testing.T) {
		h, _ := newVoterMux(t, stubCards{}, nil, nil)
		code, out := registerJSON(t, h, "12345678")
		require.Equal(t, http.StatusCreated, code)
		assert.NotEmpty(t, out["pdf_base64"])
		assert.True(t, strings.HasPrefix(out["qr_data_url"].(string), "data:image/png;base64,"))
	})

	t.Run("card failure still registers", func(t *testing.T) {
		h, s := newVoterMux(t, stubCards{fail: true}, nil, nil)
		code, out := registerJSON(t, h, "12345678")
		require.Equal(t, http.StatusCreated, code)
		assert.NotContains(t, out, "pdf_base64")
		_ = s.View(context.Background(), func(doc *store.Document) error {
			assert.Len(t, doc.Voters, 1)
			return nil
		})
	})

	t.Run("bad body", func(t *testing.T) {
		h, _ := newVoterMux(t, nil, nil, nil)
		w := serve(h, http.MethodPost, "/register", "application/json", []byte(`{"first_name":`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("multipart legacy id field and photo", func(t *testing.T) {
		photos := &memPhotos{}
		h, _ := newVoterMux(t, nil, photos, nil)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("first_name", "Kamau"))
		require.NoError(t, mw.WriteField("kenyan_id", "87654321"))
		fw, err := mw.CreateFormFile("photo", "me.png")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\n"))
		require.NoError(t, mw.Close())

		w := serve(h, http.MethodPost, "/register", mw.FormDataContentType(), body.Bytes())
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"national_id":"87654321"`)
		assert.Contains(t, w.Body.String(), `"photo_ref":"photo.png"`)
		assert.Len(t, photos.saved, 1)
	})

	t.Run("multipart photo over limit", func(t *testing.T) {
		photos := &memPhotos{}
		h, _ := newVoterMux(t, nil, photos, nil)

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("national_id", "87654321"))
		fw, err := mw.CreateFormFile("photo", "big.png")
		require.NoError(t, err)
		_, _ = fw.Write(bytes.Repeat([]byte{1}, 2048))
		require.NoError(t, mw.Close())

		w := serve(h, http.MethodPost, "/register", mw.FormDataContentType(), body.Bytes())
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, photos.saved)
	})
}

func TestVoterHandler_Lookups(t *testing.T) {
	h, _ := newVoterMux(t, nil, nil, nil)
	_, out := registerJSON(t, h, "12345678")
	regNo := out["record"].(map[string]any)["registration_number"].(string)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"by registration number", "/lookup/" + regNo, http.StatusOK},
		{"unknown number", "/lookup/KEN-20240101-ZZZZ", http.StatusNotFound},
		{"by national id", "/voter/by-id?national_id=12345678", http.StatusOK},
		{"by legacy id param", "/voter/by-id?kenyan_id=12345678", http.StatusOK},
		{"missing id", "/voter/by-id", http.StatusBadRequest},
		{"unknown id", "/voter/by-id?national_id=999", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestScannerHandler(t *testing.T) {
	clerk := &domain.StaffAccount{ID: "c1", Username: "clerk", Role: domain.RoleUser}
	h, _ := newVoterMux(t, stubCards{}, nil, clerk)

	_, first := registerJSON(t, h, "11111111")
	_, second := registerJSON(t, h, "22222222")
	regNo1 := first["record"].(map[string]any)["registration_number"].(string)
	regNo2 := second["record"].(map[string]any)["registration_number"].(string)

	post := func(path, body string) *httptest.ResponseRecorder {
		return serve(h, http.MethodPost, path, "application/json", []byte(body))
	}

	w := post("/scanner/lookup", `{"scan":"{\"registration_number\":\"`+regNo1+`\",\"national_id\":\"11111111\"}"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"national_id":"11111111"`)

	w = post("/scanner/lookup", `{"scan":"{not json"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post("/scanner/mark-voted", `{"voter_reg_no":"`+regNo1+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = post("/scanner/mark-voted", `{"voter_reg_no":"`+regNo1+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// staff confirmation stamps the operator
	w = post("/voter/confirm", `{"regno":"`+regNo2+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"confirmed_by":"clerk"`)

	w = post("/voter/confirm", `{"regno":"KEN-20240101-ZZZZ"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVoterHandler_StaffViews(t *testing.T) {
	superuser := &domain.StaffAccount{ID: "s1", Username: "sup", Role: domain.RoleSuperuser, County: "Kisumu"}
	h, _ := newVoterMux(t, stubCards{}, nil, superuser)
	_, out := registerJSON(t, h, "12345678")
	regNo := out["record"].(map[string]any)["registration_number"].(string)

	w := serve(h, http.MethodGet, "/voter/list", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), regNo)

	w = serve(h, http.MethodGet, "/pdf/"+regNo, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "voter_"+regNo+".pdf")
	assert.Equal(t, "%PDF-"+regNo, w.Body.String())

	w = serve(h, http.MethodGet, "/pdf/KEN-20240101-ZZZZ", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVoterHandler_ListRequiresRank(t *testing.T) {
	clerk := &domain.StaffAccount{ID: "c1", Username: "clerk", Role: domain.RoleUser}
	h, _ := newVoterMux(t, nil, nil, clerk)
	w := serve(h, http.MethodGet, "/voter/list", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
