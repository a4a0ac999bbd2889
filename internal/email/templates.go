package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// qrContentID is the inline attachment name the verification template
// references.
const qrContentID = "visita-qr.png"

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type appointmentVerificationEmailData struct {
	baseEmailData
	ContactName string
	Date        string
	TimeSlot    string
	Code        string
	QRImage     template.URL
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func renderAppointmentVerification(data AppointmentVerification) (string, error) {
	view := appointmentVerificationEmailData{
		baseEmailData: baseEmailData{
			Title:      subjectAppointmentVerification,
			Heading:    "Tu visita está reservada",
			Subheading: "Presenta este código o el QR cuando llegue el agente.",
		},
		ContactName: data.ContactName,
		Date:        data.Date,
		TimeSlot:    data.TimeSlot,
		Code:        data.Code,
	}
	if len(data.QRCode) > 0 {
		view.QRImage = template.URL("cid:" + qrContentID)
	}
	return renderEmailTemplate("appointment_verification.html", view)
}
