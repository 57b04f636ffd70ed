package notify

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Channels with built-in templates.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

var builtin = map[string]map[EventKind]string{
	ChannelWhatsApp: {
		EventCheckIn: "Yth. Orang Tua/Wali dari *{{.StudentName}}* ({{.ClassName}}),\n" +
			"ananda telah *tiba di sekolah* pada {{.Time}} dengan status *{{.Status}}*.\n" +
			"Terima kasih.",
		EventCheckOut: "Yth. Orang Tua/Wali dari *{{.StudentName}}* ({{.ClassName}}),\n" +
			"ananda telah *pulang dari sekolah* pada {{.Time}}.\n" +
			"Terima kasih.",
	},
	ChannelSMS: {
		EventCheckIn:  "{{.StudentName}} ({{.ClassName}}) tiba di sekolah {{.Time}}, status {{.Status}}.",
		EventCheckOut: "{{.StudentName}} ({{.ClassName}}) pulang dari sekolah {{.Time}}.",
	},
}

// Templates renders guardian messages per channel and event kind.
type Templates struct {
	byChannel map[string]map[EventKind]*template.Template
	loc       *time.Location
}

// NewTemplates parses the built-in templates. loc is the school timezone used
// for rendered timestamps.
func NewTemplates(loc *time.Location) (*Templates, error) {
	if loc == nil {
		loc = time.UTC
	}
	t := &Templates{byChannel: map[string]map[EventKind]*template.Template{}, loc: loc}
	for channel, kinds := range builtin {
		for kind, src := range kinds {
			if err := t.Set(channel, kind, src); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// Set installs or replaces the template for channel and kind.
func (t *Templates) Set(channel string, kind EventKind, src string) error {
	tpl, err := template.New(channel + "." + string(kind)).Option("missingkey=error").Parse(src)
	if err != nil {
		return fmt.Errorf("parse %s/%s template: %w", channel, kind, err)
	}
	if t.byChannel[channel] == nil {
		t.byChannel[channel] = map[EventKind]*template.Template{}
	}
	t.byChannel[channel][kind] = tpl
	return nil
}

type templateData struct {
	StudentName string
	ClassName   string
	Time        string
	Status      string
}

// Render produces the message for ev on channel.
func (t *Templates) Render(channel string, ev Event) (string, error) {
	tpl, ok := t.byChannel[channel][ev.Kind]
	if !ok {
		return "", fmt.Errorf("no template for channel %q event %q", channel, ev.Kind)
	}
	var b strings.Builder
	err := tpl.Execute(&b, templateData{
		StudentName: ev.StudentName,
		ClassName:   ev.ClassName,
		Time:        ev.At.In(t.loc).Format("02/01/2006 15:04"),
		Status:      ev.Status,
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
