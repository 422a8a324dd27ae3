package email

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Signature closes every customer email.
const Signature = "Gardners Ground Maintenance"

type Template string

const (
	Reminder            Template = "reminder"
	Completion          Template = "completion"
	EnquiryReply        Template = "enquiry_reply"
	BookingConfirmation Template = "booking_confirmation"
	Quote               Template = "quote"
	FollowUp            Template = "follow_up"
	SeasonalTip         Template = "seasonal_tip"
	Invoice             Template = "invoice"
)

// Vars fills a template. Empty fields are left out of the rendered text.
type Vars struct {
	Name      string
	Service   string
	Date      string
	Time      string
	Address   string
	Amount    string
	Reference string
	DueDate   string
	Message   string
	Notes     string
	Tip       string
}

// Each template starts with a "Subject:" line followed by a blank line.
var sources = map[Template]string{
	Reminder: `Subject: Reminder: {{or .Service "your garden visit"}} on {{.Date}}

Hi {{first .Name}},

Just a reminder that we will be with you on {{.Date}}{{with .Time}} at {{.}}{{end}} for {{or .Service "your garden visit"}}.
{{- with .Address}}
Address: {{.}}{{end}}

If anything has changed, simply reply to this email.
`,
	Completion: `Subject: {{or .Service "Your job"}} is complete

Hi {{first .Name}},

We have finished {{or .Service "the work"}}{{with .Date}} on {{.}}{{end}}. Thank you for choosing us.
{{- with .Notes}}

Notes from the team: {{.}}{{end}}

We would love to hear how it looks.
`,
	EnquiryReply: `Subject: Thanks for your enquiry{{with .Service}} about {{.}}{{end}}

Hi {{first .Name}},

Thank you for getting in touch. {{or .Message "We will be in contact shortly to arrange a visit."}}
`,
	BookingConfirmation: `Subject: Booking confirmed: {{or .Service "garden visit"}} on {{.Date}}

Hi {{first .Name}},

Your booking for {{or .Service "a garden visit"}} is confirmed for {{.Date}}{{with .Time}} at {{.}}{{end}}.
{{- with .Reference}}
Reference: {{.}}{{end}}
`,
	Quote: `Subject: Your quote{{with .Service}} for {{.}}{{end}}

Hi {{first .Name}},

Thank you for your enquiry. Our quote{{with .Service}} for {{.}}{{end}} is {{or .Amount "attached"}}.
{{- with .Message}}

{{.}}{{end}}

Reply to this email to book in.
`,
	FollowUp: `Subject: How is your garden looking?

Hi {{first .Name}},

A few days ago we completed {{or .Service "work in your garden"}}. We hope you are happy with the results.
If you have a moment, a short review helps other local customers find us.
`,
	SeasonalTip: `Subject: {{or .Service "Seasonal"}} garden tip

Hi {{first .Name}},

{{.Tip}}
`,
	Invoice: `Subject: Invoice {{.Reference}} from {{signature}}

Hi {{first .Name}},

Please find below invoice {{.Reference}}{{with .Service}} for {{.}}{{end}}.

Amount due: {{.Amount}}
{{- with .DueDate}}
Due by: {{.}}{{end}}

Thank you for your custom.
`,
}

var templates = func() map[Template]*template.Template {
	funcs := template.FuncMap{
		"first": func(name string) string {
			if f := strings.Fields(name); len(f) > 0 {
				return f[0]
			}
			return "there"
		},
		"signature": func() string { return Signature },
	}
	out := make(map[Template]*template.Template, len(sources))
	for name, src := range sources {
		out[name] = template.Must(template.New(string(name)).Funcs(funcs).Parse(src))
	}
	return out
}()

// Compose renders t for one recipient.
func Compose(t Template, to Recipient, v Vars) (Message, error) {
	tmpl, ok := templates[t]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", t)
	}
	if v.Name == "" {
		v.Name = to.Name
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", t, err)
	}

	head, body, _ := strings.Cut(buf.String(), "\n\n")
	subject := strings.TrimSpace(strings.TrimPrefix(head, "Subject:"))
	body = strings.TrimRight(body, "\n") + "\n\nKind regards,\n" + Signature + "\n"

	return Message{To: []Recipient{to}, Subject: subject, Text: body}, nil
}
