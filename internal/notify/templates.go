package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"
)

// TemplateKind names one of the appointment emails.
type TemplateKind string

const (
	TemplateOwnerAlert         TemplateKind = "owner_alert"
	TemplateClientReceipt      TemplateKind = "client_receipt"
	TemplateClientConfirmation TemplateKind = "client_confirmation"
	TemplateClientCancellation TemplateKind = "client_cancellation"
)

// Valid reports whether k is a known template.
func (k TemplateKind) Valid() bool {
	switch k {
	case TemplateOwnerAlert, TemplateClientReceipt, TemplateClientConfirmation, TemplateClientCancellation:
		return true
	}
	return false
}

// VehicleSummary is the vehicle context shown in emails.
type VehicleSummary struct {
	ID       string `json:"id"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Title renders "2021 Porsche 911 Carrera".
func (v *VehicleSummary) Title() string {
	if v == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if v.Year > 0 {
		parts = append(parts, strconv.Itoa(v.Year))
	}
	if v.Make != "" {
		parts = append(parts, v.Make)
	}
	if v.Model != "" {
		parts = append(parts, v.Model)
	}
	return strings.Join(parts, " ")
}

// FormattedPrice renders whole euros with thin grouping, e.g. "125 000 €".
func (v *VehicleSummary) FormattedPrice() string {
	if v == nil || v.Price <= 0 {
		return ""
	}
	return groupThousands(v.Price) + " €"
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// AppointmentEmailData is everything a template may print.
type AppointmentEmailData struct {
	ClientName    string          `json:"clientName"`
	ClientEmail   string          `json:"clientEmail"`
	ClientPhone   string          `json:"clientPhone"`
	FormattedDate string          `json:"formattedDate"`
	ServiceLabel  string          `json:"serviceLabel"`
	Vehicle       *VehicleSummary `json:"vehicle,omitempty"`
	ClientMessage string          `json:"clientMessage,omitempty"`
	AdminMessage  string          `json:"adminMessage,omitempty"`
	AppointmentID string          `json:"appointmentId"`
	Rescheduled   bool            `json:"rescheduled,omitempty"`
}

// Brand carries the dealership identity printed in every email.
type Brand struct {
	BusinessName  string
	OwnerEmail    string
	OwnerName     string
	PublicBaseURL string
}

type templateView struct {
	AppointmentEmailData
	Brand Brand
}

func (v templateView) AdminLink() string {
	base := strings.TrimRight(v.Brand.PublicBaseURL, "/")
	if base == "" || v.AppointmentID == "" {
		return ""
	}
	return base + "/admin/appointments/" + v.AppointmentID
}

type emailTemplate struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// Renderer turns a TemplateKind and payload into a ready-to-send message.
type Renderer struct {
	brand     Brand
	templates map[TemplateKind]emailTemplate
}

// NewRenderer parses the four appointment templates.
func NewRenderer(brand Brand) (*Renderer, error) {
	if strings.TrimSpace(brand.BusinessName) == "" {
		brand.BusinessName = defaultFromName
	}
	r := &Renderer{brand: brand, templates: make(map[TemplateKind]emailTemplate, len(templateSources))}
	for kind, src := range templateSources {
		html, err := htmltemplate.New(string(kind)).Option("missingkey=error").Parse(htmlLayout + src.html)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s html: %w", kind, err)
		}
		text, err := texttemplate.New(string(kind)).Option("missingkey=error").Parse(textLayout + src.text)
		if err != nil {
			return nil, fmt.Errorf("notify: parse %s text: %w", kind, err)
		}
		r.templates[kind] = emailTemplate{subject: src.subject, html: html, text: text}
	}
	return r, nil
}

// Render builds the message for kind. Owner alerts go to the owner with the
// client as reply-to; every other template goes to the client.
func (r *Renderer) Render(kind TemplateKind, data AppointmentEmailData) (EmailMessage, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return EmailMessage{}, fmt.Errorf("notify: unknown template %q", kind)
	}
	view := templateView{AppointmentEmailData: data, Brand: r.brand}

	var html, text bytes.Buffer
	if err := tmpl.html.ExecuteTemplate(&html, "layout", view); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s html: %w", kind, err)
	}
	if err := tmpl.text.ExecuteTemplate(&text, "layout", view); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s text: %w", kind, err)
	}

	subject := fmt.Sprintf(tmpl.subject, r.brand.BusinessName)
	if kind == TemplateClientConfirmation && data.Rescheduled {
		subject = fmt.Sprintf("Your appointment has been rescheduled | %s", r.brand.BusinessName)
	}
	msg := EmailMessage{
		Subject:  subject,
		Body:     strings.TrimSpace(text.String()) + "\n",
		HTML:     html.String(),
		Category: string(kind),
	}
	if kind == TemplateOwnerAlert {
		if r.brand.OwnerEmail == "" {
			return EmailMessage{}, fmt.Errorf("notify: owner email not configured")
		}
		msg.To = r.brand.OwnerEmail
		msg.ToName = r.brand.OwnerName
		msg.ReplyTo = data.ClientEmail
		msg.Subject = fmt.Sprintf("New appointment request from %s", data.ClientName)
		return msg, nil
	}
	if data.ClientEmail == "" {
		return EmailMessage{}, fmt.Errorf("notify: client email missing")
	}
	msg.To = data.ClientEmail
	msg.ToName = data.ClientName
	msg.ReplyTo = r.brand.OwnerEmail
	return msg, nil
}

type templateSource struct {
	subject string
	html    string
	text    string
}

const htmlLayout = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Brand.BusinessName}}</title></head>
<body style="margin:0;padding:0;background:#f4f1ec;font-family:Georgia,serif;color:#1b1b1b;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0">
<tr><td align="center" style="padding:32px 16px;">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;border-top:4px solid #b08d57;">
<tr><td style="padding:28px 36px 8px;font-size:22px;letter-spacing:2px;text-transform:uppercase;">{{.Brand.BusinessName}}</td></tr>
<tr><td style="padding:8px 36px 28px;font-size:15px;line-height:1.6;">{{template "content" .}}</td></tr>
<tr><td style="padding:16px 36px;background:#1b1b1b;color:#c9c2b8;font-size:12px;">{{.Brand.BusinessName}}{{if .Brand.OwnerEmail}} &middot; {{.Brand.OwnerEmail}}{{end}}</td></tr>
</table>
</td></tr>
</table>
</body>
</html>{{end}}
{{define "details"}}<table role="presentation" cellpadding="6" cellspacing="0" style="margin:16px 0;border-collapse:collapse;font-size:14px;">
<tr><td style="color:#7a7067;">Date</td><td><strong>{{.FormattedDate}}</strong></td></tr>
<tr><td style="color:#7a7067;">Service</td><td>{{.ServiceLabel}}</td></tr>
{{with .Vehicle}}<tr><td style="color:#7a7067;">Vehicle</td><td>{{.Title}}{{with .FormattedPrice}} &middot; {{.}}{{end}}</td></tr>{{end}}
</table>
{{with .Vehicle}}{{with .ImageURL}}<img src="{{.}}" alt="" width="528" style="display:block;max-width:100%;margin:8px 0 16px;">{{end}}{{end}}{{end}}
{{define "admin_message"}}{{with .AdminMessage}}<blockquote style="margin:16px 0;padding:12px 16px;border-left:3px solid #b08d57;background:#faf7f2;">{{.}}</blockquote>{{end}}{{end}}
`

const textLayout = `{{define "layout"}}{{.Brand.BusinessName}}

{{template "content" .}}
--
{{.Brand.BusinessName}}{{if .Brand.OwnerEmail}} - {{.Brand.OwnerEmail}}{{end}}
{{end}}
{{define "details"}}Date: {{.FormattedDate}}
Service: {{.ServiceLabel}}
{{with .Vehicle}}Vehicle: {{.Title}}{{with .FormattedPrice}} ({{.}}){{end}}
{{end}}{{end}}
{{define "admin_message"}}{{with .AdminMessage}}
Message from our team:
{{.}}
{{end}}{{end}}
`

var templateSources = map[TemplateKind]templateSource{
	TemplateOwnerAlert: {
		subject: "New appointment request | %s",
		html: `{{define "content"}}<p>A new appointment request has been submitted.</p>
<table role="presentation" cellpadding="6" cellspacing="0" style="margin:16px 0;border-collapse:collapse;font-size:14px;">
<tr><td style="color:#7a7067;">Client</td><td><strong>{{.ClientName}}</strong></td></tr>
<tr><td style="color:#7a7067;">Email</td><td><a href="mailto:{{.ClientEmail}}">{{.ClientEmail}}</a></td></tr>
<tr><td style="color:#7a7067;">Phone</td><td><a href="tel:{{.ClientPhone}}">{{.ClientPhone}}</a></td></tr>
</table>
{{template "details" .}}
{{with .ClientMessage}}<p style="color:#7a7067;margin-bottom:4px;">Client message</p><blockquote style="margin:0 0 16px;padding:12px 16px;background:#faf7f2;">{{.}}</blockquote>{{end}}
{{with .AdminLink}}<p><a href="{{.}}" style="color:#b08d57;">Review the request</a></p>{{end}}{{end}}`,
		text: `{{define "content"}}A new appointment request has been submitted.

Client: {{.ClientName}}
Email: {{.ClientEmail}}
Phone: {{.ClientPhone}}
{{template "details" .}}{{with .ClientMessage}}
Client message:
{{.}}
{{end}}{{with .AdminLink}}
Review: {{.}}
{{end}}{{end}}`,
	},
	TemplateClientReceipt: {
		subject: "We received your appointment request | %s",
		html: `{{define "content"}}<p>Dear {{.ClientName}},</p>
<p>Thank you for your request. Our team will review it and confirm your appointment shortly.</p>
{{template "details" .}}
<p>Reference: {{.AppointmentID}}</p>{{end}}`,
		text: `{{define "content"}}Dear {{.ClientName}},

Thank you for your request. Our team will review it and confirm your appointment shortly.

{{template "details" .}}
Reference: {{.AppointmentID}}{{end}}`,
	},
	TemplateClientConfirmation: {
		subject: "Your appointment is confirmed | %s",
		html: `{{define "content"}}<p>Dear {{.ClientName}},</p>
{{if .Rescheduled}}<p>Your appointment has been moved to a new date. Here are the updated details.</p>{{else}}<p>We are delighted to confirm your appointment.</p>{{end}}
{{template "details" .}}
{{template "admin_message" .}}
<p>We look forward to welcoming you.</p>{{end}}`,
		text: `{{define "content"}}Dear {{.ClientName}},

{{if .Rescheduled}}Your appointment has been moved to a new date. Here are the updated details.{{else}}We are delighted to confirm your appointment.{{end}}

{{template "details" .}}{{template "admin_message" .}}
We look forward to welcoming you.{{end}}`,
	},
	TemplateClientCancellation: {
		subject: "Your appointment has been cancelled | %s",
		html: `{{define "content"}}<p>Dear {{.ClientName}},</p>
<p>We regret to inform you that your appointment has been cancelled.</p>
{{template "details" .}}
{{template "admin_message" .}}
<p>Please do not hesitate to book another time that suits you.</p>{{end}}`,
		text: `{{define "content"}}Dear {{.ClientName}},

We regret to inform you that your appointment has been cancelled.

{{template "details" .}}{{template "admin_message" .}}
Please do not hesitate to book another time that suits you.{{end}}`,
	},
}
