package flow

// Template is a ready-made email offered from the template menu.
type Template struct {
	Key     string
	Label   string // button text; defaults to Subject
	Subject string
	Body    string
}

var builtinTemplates = map[string][]Template{
	"en": {{
		Key:     "meeting_reminder",
		Label:   "📅 Meeting Reminder",
		Subject: "Meeting Reminder",
		Body: `Hello,

This is a reminder for the [MEETING NAME] meeting.

Meeting details:
- Date: [DATE]
- Time: [TIME]
- Location: [LOCATION]
- Topic: [TOPIC]

Please make sure to attend on time.

Have a nice day,
[SIGNATURE]`,
	}},
	"tr": {{
		Key:     "meeting_reminder",
		Label:   "📅 Toplantı Hatırlatması",
		Subject: "Toplantı Hatırlatması",
		Body: `Merhaba,

Bu mail, [TOPLANTI ADI] toplantısı için bir hatırlatmadır.

Toplantı Detayları:
- Tarih: [TARİH]
- Saat: [SAAT]
- Yer: [YER]
- Konu: [KONU]

Lütfen toplantıya zamanında katılım sağlayınız.

İyi günler,
[İMZA]`,
	}},
}

// Templates returns the built-in templates for locale followed by extra.
// An extra template replaces a built-in one with the same key.
func Templates(locale string, extra []Template) []Template {
	base, ok := builtinTemplates[locale]
	if !ok {
		base = builtinTemplates["en"]
	}
	override := make(map[string]Template, len(extra))
	for _, t := range extra {
		override[t.Key] = t
	}
	out := make([]Template, 0, len(base)+len(extra))
	for _, t := range base {
		if o, ok := override[t.Key]; ok {
			t = o
			delete(override, t.Key)
		}
		out = append(out, t)
	}
	for _, t := range extra {
		if _, pending := override[t.Key]; pending {
			out = append(out, t)
		}
	}
	for i := range out {
		if out[i].Label == "" {
			out[i].Label = out[i].Subject
		}
	}
	return out
}
