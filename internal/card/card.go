// Package card renders the printable voter card and its QR code.
package card

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"

	"github.com/kenvote/registry/internal/domain"
)

// Card geometry in points.
const (
	Width  = 360.0
	Height = 230.0
	margin = 12.0
)

// QRPayload is the JSON encoded into the card's QR code.
type QRPayload struct {
	RegistrationNumber string `json:"registration_number"`
	NationalID         string `json:"national_id"`
}

// PhotoReader loads a stored photo by reference.
type PhotoReader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// PDFRenderer draws voter cards with fpdf.
type PDFRenderer struct {
	photos PhotoReader
	logger *slog.Logger
}

// NewPDFRenderer creates a renderer. photos may be nil, in which case cards
// are drawn without a photo.
func NewPDFRenderer(photos PhotoReader, logger *slog.Logger) *PDFRenderer {
	return &PDFRenderer{photos: photos, logger: logger}
}

// QRCode encodes the scan payload for rec as a PNG.
func QRCode(rec *domain.VoterRecord) ([]byte, error) {
	payload, err := json.Marshal(QRPayload{
		RegistrationNumber: rec.RegistrationNumber,
		NationalID:         rec.NationalID,
	})
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(payload), qrcode.Medium, 256)
}

// Render produces the card PDF and QR image for rec. A missing or unreadable
// photo leaves the photo area blank.
func (r *PDFRenderer) Render(ctx context.Context, rec *domain.VoterRecord) (*domain.VoterCard, error) {
	qr, err := QRCode(rec)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: Width, Ht: Height},
	})
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 16, "REPUBLIC OF KENYA", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 18, "VOTER ID CARD", "", 1, "C", false, 0, "")

	r.drawPhoto(ctx, pdf, rec)

	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		"Name: " + rec.FirstName + " " + rec.LastName,
		"National ID: " + rec.NationalID,
		"County: " + rec.County,
		"Sub-County: " + rec.SubCounty,
		"Ward: " + rec.Ward,
		"",
		"Voter Reg No: " + rec.RegistrationNumber,
	}
	y := 78.0
	for _, line := range lines {
		pdf.Text(110, y, tr(line))
		y += 13
	}

	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 260, 70, 80, 80, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	pdf.Text(margin, Height-margin-4, "Present this card with your national ID on election day.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return &domain.VoterCard{PDF: buf.Bytes(), QRCode: qr}, nil
}

func (r *PDFRenderer) drawPhoto(ctx context.Context, pdf *fpdf.Fpdf, rec *domain.VoterRecord) {
	if r.photos == nil || rec.PhotoRef == "" {
		return
	}
	data, err := r.photos.Read(ctx, rec.PhotoRef)
	if err != nil {
		r.logger.Warn("card photo unavailable", "registration_number", rec.RegistrationNumber, "error", err)
		return
	}

	var typ string
	switch http.DetectContentType(data) {
	case "image/jpeg":
		typ = "JPG"
	case "image/png":
		typ = "PNG"
	default:
		return
	}
	opts := fpdf.ImageOptions{ImageType: typ}
	pdf.RegisterImageOptionsReader("photo", opts, bytes.NewReader(data))
	if !pdf.Ok() {
		// fpdf latches errors; clear it so the card still renders
		r.logger.Warn("card photo unreadable", "registration_number", rec.RegistrationNumber, "error", pdf.Error())
		pdf.ClearError()
		return
	}
	pdf.ImageOptions("photo", margin, 70, 80, 100, false, opts, 0, "")
}
