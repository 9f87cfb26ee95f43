package flow

// catalog holds every user-facing string for one locale.
type catalog struct {
	RootMenu string

	BtnAI               string
	BtnManual           string
	BtnTemplates        string
	BtnWriteManually    string
	BtnBack             string
	BtnMainMenu         string
	BtnEdit             string
	BtnAttach           string
	BtnRegenerate       string
	BtnRecipients       string
	BtnExcel            string
	BtnManualRecipients string
	BtnConfirm          string
	BtnSend             string

	AISubjectPrompt string
	AIContentPrompt string
	TonePrompt      string
	ToneButtons     map[string]string
	ToneNames       map[string]string // injected into the AI prompt

	ManualSubjectPrompt string
	ManualContentPrompt string
	TemplatePrompt      string
	EditPrompt          string // %s = current content

	PreviewTitle     string
	SubjectLabel     string
	ContentLabel     string
	AttachmentsLabel string
	PreviewQuestion  string
	FinalTitle       string
	RecipientsLabel  string
	FinalQuestion    string

	AttachPrompt     string
	AttachProcessing string
	AttachHint       string
	AttachFailed     string
	FileTooLarge     string

	RecipientsPrompt       string
	ExcelPrompt            string
	ExcelProcessing        string
	ExcelNoAddresses       string
	ExcelUnreadable        string
	ManualRecipientsPrompt string
	ManualRecipientsEmpty  string
	RecipientsFound        string // %d = count, %s = list
	MoreRecipients         string // %d = hidden count

	AIGenerating string
	AIFailed     string
	AIDisabled   string

	Sending      string
	Sent         string // %s = recipients
	SendFailed   string
	MailDisabled string

	Refusal string
}

var catalogs = map[string]*catalog{
	"en": {
		RootMenu: "Choose how to create the email:",

		BtnAI:               "🤖 Create with AI",
		BtnManual:           "✍️ Write manually",
		BtnTemplates:        "📋 Choose a template",
		BtnWriteManually:    "✍️ Write manually",
		BtnBack:             "🔙 Back",
		BtnMainMenu:         "🏠 Main menu",
		BtnEdit:             "✏️ Edit",
		BtnAttach:           "📎 Add file",
		BtnRegenerate:       "🔄 Regenerate",
		BtnRecipients:       "➡️ Set recipients",
		BtnExcel:            "📊 Bulk from Excel",
		BtnManualRecipients: "✍️ Enter manually",
		BtnConfirm:          "✅ Confirm",
		BtnSend:             "✅ Send",

		AISubjectPrompt: "Enter the email subject:",
		AIContentPrompt: "Briefly describe what the email should say:",
		TonePrompt:      "Which tone should the email have?",
		ToneButtons: map[string]string{
			ToneFormal:       "Formal",
			ToneFriendly:     "Friendly",
			ToneProfessional: "Professional",
			ToneCasual:       "Casual",
		},
		ToneNames: map[string]string{
			ToneFormal:       "formal",
			ToneFriendly:     "friendly",
			ToneProfessional: "professional",
			ToneCasual:       "casual",
		},

		ManualSubjectPrompt: "Enter the email subject:",
		ManualContentPrompt: "Enter the email content:",
		TemplatePrompt:      "Which template would you like to use?",
		EditPrompt:          "Current email content:\n\n%s\n\nSend the edited content:",

		PreviewTitle:     "📧 *Email Preview*",
		SubjectLabel:     "*Subject:*",
		ContentLabel:     "*Content:*",
		AttachmentsLabel: "*📎 Attached Files:*",
		PreviewQuestion:  "The email is ready! What would you like to do?",
		FinalTitle:       "📧 *Final Email Preview*",
		RecipientsLabel:  "*Recipients:*",
		FinalQuestion:    "Do you want to send the email?",

		AttachPrompt:     "📎 Send the file to attach (image, PDF, Word, Excel, etc.):",
		AttachProcessing: "📎 Processing the file, please wait...",
		AttachHint:       "To send a file, first press the '📎 Add file' button.",
		AttachFailed:     "The file could not be downloaded. Please try again.",
		FileTooLarge:     "The file is too large. The limit is 20 MB.",

		RecipientsPrompt:       "How do you want to set the recipients?",
		ExcelPrompt:            "Send the Excel file. Email addresses must be in the first column, starting from the second row.",
		ExcelProcessing:        "📊 Processing the Excel file, please wait...",
		ExcelNoAddresses:       "No valid email address was found in the Excel file. Please make sure the first column contains email addresses.",
		ExcelUnreadable:        "The file could not be read as a spreadsheet. Please send an .xlsx or .csv file.",
		ManualRecipientsPrompt: "Type the email addresses one per line:",
		ManualRecipientsEmpty:  "No email address was entered. Type the addresses one per line:",
		RecipientsFound:        "✅ %d email addresses found:\n\n%s",
		MoreRecipients:         "… and %d more",

		AIGenerating: "AI is writing the email, please wait...",
		AIFailed:     "An error occurred while creating the email with AI. Please try again.",
		AIDisabled:   "The AI feature is not configured. Please contact the administrator.",

		Sending:      "Sending the email...",
		Sent:         "✅ Email sent successfully!\n\nRecipients: %s",
		SendFailed:   "An error occurred while sending the email. Please try again.",
		MailDisabled: "Mail sending is not configured. Please contact the administrator.",

		Refusal: "You are not authorized to use this bot.",
	},
	"tr": {
		RootMenu: "Mail oluşturmak için bir yöntem seçin:",

		BtnAI:               "🤖 Yapay Zeka ile Oluştur",
		BtnManual:           "✍️ Manuel Oluştur",
		BtnTemplates:        "📋 Şablonlardan Seç",
		BtnWriteManually:    "✍️ Manuel Oluştur",
		BtnBack:             "🔙 Geri Dön",
		BtnMainMenu:         "🏠 Ana Menü",
		BtnEdit:             "✏️ Düzenle",
		BtnAttach:           "📎 Dosya Ekle",
		BtnRegenerate:       "🔄 Yeniden Üret",
		BtnRecipients:       "➡️ Alıcıları Belirle",
		BtnExcel:            "📊 Excel ile Toplu",
		BtnManualRecipients: "✍️ Manuel Gir",
		BtnConfirm:          "✅ Onayla",
		BtnSend:             "✅ Gönder",

		AISubjectPrompt: "Mail konusunu girin:",
		AIContentPrompt: "Mail içeriği hakkında kısaca ne yazmak istediğinizi belirtin:",
		TonePrompt:      "Mail hangi tonda yazılsın?",
		ToneButtons: map[string]string{
			ToneFormal:       "Resmi",
			ToneFriendly:     "Samimi",
			ToneProfessional: "Profesyonel",
			ToneCasual:       "Casual",
		},
		ToneNames: map[string]string{
			ToneFormal:       "resmi",
			ToneFriendly:     "samimi",
			ToneProfessional: "profesyonel",
			ToneCasual:       "casual",
		},

		ManualSubjectPrompt: "Mail konusunu girin:",
		ManualContentPrompt: "Mail içeriğini girin:",
		TemplatePrompt:      "Hangi şablonu kullanmak istiyorsunuz?",
		EditPrompt:          "Mevcut mail içeriği:\n\n%s\n\nDüzenlenmiş içeriği gönderin:",

		PreviewTitle:     "📧 *Mail Önizlemesi*",
		SubjectLabel:     "*Konu:*",
		ContentLabel:     "*İçerik:*",
		AttachmentsLabel: "*📎 Eklenen Dosyalar:*",
		PreviewQuestion:  "Mail hazır! Ne yapmak istiyorsunuz?",
		FinalTitle:       "📧 *Son Mail Önizlemesi*",
		RecipientsLabel:  "*Alıcılar:*",
		FinalQuestion:    "Maili göndermek istiyor musunuz?",

		AttachPrompt:     "📎 Eklenecek dosyayı gönderin (resim, PDF, Word, Excel vb.):",
		AttachProcessing: "📎 Dosya işleniyor, lütfen bekleyin...",
		AttachHint:       "Dosya göndermek için önce '📎 Dosya Ekle' butonuna basın.",
		AttachFailed:     "Dosya indirilemedi. Lütfen tekrar deneyin.",
		FileTooLarge:     "Dosya çok büyük. Sınır 20 MB.",

		RecipientsPrompt:       "Alıcıları nasıl belirlemek istiyorsunuz?",
		ExcelPrompt:            "Excel dosyasını gönderin. Dosyada ilk sütundaki ikinci satırdan itibaren mail adresleri olmalı.",
		ExcelProcessing:        "📊 Excel dosyası işleniyor, lütfen bekleyin...",
		ExcelNoAddresses:       "Excel dosyasında geçerli mail adresi bulunamadı. Lütfen ilk sütunda mail adreslerinin olduğundan emin olun.",
		ExcelUnreadable:        "Dosya tablo olarak okunamadı. Lütfen .xlsx veya .csv dosyası gönderin.",
		ManualRecipientsPrompt: "Mail adreslerini alt alta yazın (her satıra bir mail adresi):",
		ManualRecipientsEmpty:  "Mail adresi girilmedi. Adresleri alt alta yazın:",
		RecipientsFound:        "✅ %d mail adresi bulundu:\n\n%s",
		MoreRecipients:         "… ve %d adres daha",

		AIGenerating: "Yapay zeka mail içeriğini oluşturuyor, lütfen bekleyin...",
		AIFailed:     "Yapay zeka ile mail oluşturulurken hata oluştu. Lütfen tekrar deneyin.",
		AIDisabled:   "Yapay zeka özelliği yapılandırılmamış. Lütfen yöneticiye bildirin.",

		Sending:      "Mail gönderiliyor...",
		Sent:         "✅ Mail başarıyla gönderildi!\n\nAlıcılar: %s",
		SendFailed:   "Mail gönderilirken hata oluştu. Lütfen tekrar deneyin.",
		MailDisabled: "Mail gönderimi yapılandırılmamış. Lütfen yöneticiye bildirin.",

		Refusal: "Bu botu kullanma yetkiniz yok.",
	},
}

// lookup returns the catalog for locale, falling back to English.
func lookup(locale string) *catalog {
	if c, ok := catalogs[locale]; ok {
		return c
	}
	return catalogs["en"]
}

// Refusal returns the reply sent to users outside the allow-list.
func Refusal(locale string) string {
	return lookup(locale).Refusal
}
