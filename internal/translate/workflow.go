package translate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/socialsync/socialsync/internal/config"
)

// selectionPrefixes mark quick-reply payloads that carry a language choice.
const (
	payloadPrefixUpper = "LANG_"
	payloadPrefixLower = "lang_"
)

// Option is one selectable language presented to the user.
type Option struct {
	Code string
	Name string
}

// defaultLanguages matches the deployment this bridge was built for.
var defaultLanguages = []config.Language{
	{Code: "en", Name: "English"},
	{Code: "ta", Name: "Tamil"},
	{Code: "ml", Name: "Malayalam"},
}

var confirmations = map[string]string{
	"en": "Language set to English! How can I help you today?",
	"ta": "மொழி தமிழ் என அமைக்கப்பட்டது! இன்று நான் உங்களுக்கு எப்படி உதவ முடியும்?",
	"ml": "ഭാഷ മലയാളം ആയി സജ്ജമാക്കി! ഇന്ന് ഞാൻ നിങ്ങളെ എങ്ങനെ സഹായിക്കും?",
}

// Workflow drives the language selection and translation pipeline for
// users whose language preference is or isn't known yet.
type Workflow struct {
	translator Translator
	languages  []config.Language
	logger     *slog.Logger
}

// NewWorkflow creates the language workflow. When languages is empty the
// built-in defaults apply.
func NewWorkflow(translator Translator, languages []config.Language, logger *slog.Logger) *Workflow {
	if len(languages) == 0 {
		languages = defaultLanguages
	}
	return &Workflow{
		translator: translator,
		languages:  languages,
		logger:     logger.With("component", "language_workflow"),
	}
}

// Options returns the selectable languages in configured order.
func (w *Workflow) Options() []Option {
	opts := make([]Option, 0, len(w.languages))
	for _, lang := range w.languages {
		opts = append(opts, Option{Code: lang.Code, Name: lang.Name})
	}
	return opts
}

// PromptText is the language selection prompt, shown trilingual as the
// deployment's audience expects.
func (w *Workflow) PromptText() string {
	return "Welcome!\n\nWhat's your preferred language?\nஉங்கள் விருப்ப மொழி என்ன?\nനിങ്ങളുടെ ഇഷ്ടമുള്ള ഭാഷ എന്താണ്?"
}

// Supported reports whether code is a configured language.
func (w *Workflow) Supported(code string) bool {
	for _, lang := range w.languages {
		if lang.Code == code {
			return true
		}
	}
	return false
}

// Selection extracts a language choice from a message, checking the
// quick-reply payload first and then the text against configured language
// names and codes. Returns "" when the message is not a selection.
func (w *Workflow) Selection(text, payload string) string {
	if code, ok := strings.CutPrefix(payload, payloadPrefixUpper); ok {
		return code
	}
	if code, ok := strings.CutPrefix(payload, payloadPrefixLower); ok {
		return code
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, lang := range w.languages {
		if normalized == lang.Code || normalized == strings.ToLower(lang.Name) {
			return lang.Code
		}
	}
	return ""
}

// Confirmation returns the set-language confirmation in the chosen
// language, falling back to English.
func (w *Workflow) Confirmation(code string) string {
	if msg, ok := confirmations[code]; ok {
		return msg
	}
	return confirmations["en"]
}

// ToEnglish translates inbound text to English. English text and
// translation failures pass through unchanged; a failed translation is
// logged rather than failing the turn.
func (w *Workflow) ToEnglish(ctx context.Context, text, userLanguage string) string {
	if userLanguage == "" || userLanguage == "en" {
		return text
	}

	translated, err := w.translator.Translate(ctx, text, userLanguage, "en")
	if err != nil {
		w.logger.WarnContext(ctx, "Inbound translation failed, passing through",
			"language", userLanguage, "error", err)
		return text
	}
	return translated
}

// FromEnglish translates the agent's reply back to the user's language,
// passing through on failure.
func (w *Workflow) FromEnglish(ctx context.Context, text, userLanguage string) string {
	if userLanguage == "" || userLanguage == "en" {
		return text
	}

	translated, err := w.translator.Translate(ctx, text, "en", userLanguage)
	if err != nil {
		w.logger.WarnContext(ctx, "Outbound translation failed, passing through",
			"language", userLanguage, "error", err)
		return text
	}
	return translated
}
