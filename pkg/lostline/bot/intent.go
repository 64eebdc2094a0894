// intent.go classifies what an inbound message is trying to accomplish.
// A deterministic rule chain handles the common cases; when no rule matches
// and a language model is configured, a constrained classification prompt is
// used as a fallback. The classifier always returns a result; LLM failures
// degrade to the default intent and never propagate.
package bot

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Intent labels what the user's message is trying to accomplish.
type Intent string

const (
	IntentGreeting               Intent = "greeting"
	IntentGoodbye                Intent = "goodbye"
	IntentReportLostItem         Intent = "report_lost_item"
	IntentProvideItemDescription Intent = "provide_item_description"
	IntentProvideLocation        Intent = "provide_location"
	IntentProvideContactInfo     Intent = "provide_contact_info"
	IntentProvideName            Intent = "provide_name"
	IntentProvidePhone           Intent = "provide_phone"
	IntentProvideEmail           Intent = "provide_email"
	IntentProvideTime            Intent = "provide_time"
	IntentLearnAboutCompany      Intent = "learn_about_company"
	IntentRequestHelp            Intent = "request_help"
	IntentConfirm                Intent = "confirm"
	IntentDeny                   Intent = "deny"
	IntentGeneralQuery           Intent = "general_query"
)

// classifiableIntents is the closed set the LLM fallback may answer with.
var classifiableIntents = []Intent{
	IntentGreeting,
	IntentGoodbye,
	IntentReportLostItem,
	IntentProvideItemDescription,
	IntentProvideLocation,
	IntentProvideContactInfo,
	IntentProvideTime,
	IntentLearnAboutCompany,
	IntentRequestHelp,
	IntentConfirm,
	IntentDeny,
	IntentGeneralQuery,
}

// Classification is the classifier's verdict. Confidence values are fixed
// constants used for logging and telemetry only; no branching depends on them.
type Classification struct {
	Intent     Intent
	Confidence float64
	Source     string // "rules", "llm", or "default"
}

var (
	lostKeywords     = []string{"lost", "missing", "find", "can't find", "misplaced"}
	greetingSet      = map[string]bool{"hi": true, "hello": true, "hey": true, "greetings": true, "hi there": true}
	descriptionStops = []string{"help", "hi", "hello"}
	phonePattern     = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

// Classifier maps (message text, session) to an intent. It is pure over its
// inputs apart from the optional language-model call.
type Classifier struct {
	llm        LanguageModel
	companyKws []string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClassifier builds a classifier. llm may be nil, in which case the
// fallback step is skipped. Company keywords are matched by the
// learn_about_company rule alongside the fixed "about"/"company"/"service"
// terms (the brand and product names, lowercased).
func NewClassifier(llm LanguageModel, companyKeywords []string, timeout time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	kws := make([]string, 0, len(companyKeywords))
	for _, kw := range companyKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}
	return &Classifier{
		llm:        llm,
		companyKws: kws,
		timeout:    timeout,
		logger:     logger.With("component", "classifier"),
	}
}

// Classify runs the rule chain in order; first match wins.
func (c *Classifier) Classify(ctx context.Context, text string, s *Session) Classification {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	// 1. Lost-item keywords anywhere in the message.
	for _, kw := range lostKeywords {
		if strings.Contains(lower, kw) {
			return Classification{IntentReportLostItem, 0.9, "rules"}
		}
	}

	// 2. Free text while the lost-item flow is collecting a description.
	if s.Flow == FlowLostItemReport && len(trimmed) > 3 && !containsAny(lower, descriptionStops) {
		return Classification{IntentProvideItemDescription, 0.8, "rules"}
	}

	// 3. Company/brand keywords.
	companyTerms := append([]string{"about", "company", "service"}, c.companyKws...)
	if containsAny(lower, companyTerms) {
		return Classification{IntentLearnAboutCompany, 0.85, "rules"}
	}

	// 4. Exact-match greetings.
	if greetingSet[lower] {
		return Classification{IntentGreeting, 0.95, "rules"}
	}

	// 5. Contact-info shapes while collecting contact details.
	if s.Flow == FlowCollectingContact {
		switch {
		case phonePattern.MatchString(trimmed):
			return Classification{IntentProvidePhone, 0.9, "rules"}
		case strings.Contains(trimmed, "@") && strings.Contains(trimmed, "."):
			return Classification{IntentProvideEmail, 0.9, "rules"}
		case len(trimmed) > 2 && len(trimmed) < 50:
			// Once the name is collected, short free text at this stage is
			// the answer to the location question.
			if s.Report != nil && s.Report.Name != "" && s.Report.Location == "" {
				return Classification{IntentProvideLocation, 0.7, "rules"}
			}
			return Classification{IntentProvideName, 0.7, "rules"}
		}
	}

	// 6. Language-model fallback, constrained to the known intent set.
	if c.llm != nil {
		if intent, ok := c.classifyWithLLM(ctx, trimmed, s); ok {
			return Classification{intent, 0.6, "llm"}
		}
	}

	// 7. Default.
	return Classification{IntentGeneralQuery, 0.5, "default"}
}

// classifyWithLLM asks the model to pick exactly one label from the closed
// intent set. Any call failure or unparseable answer reports !ok so the
// caller falls through to the default.
func (c *Classifier) classifyWithLLM(ctx context.Context, text string, s *Session) (Intent, bool) {
	labels := make([]string, len(classifiableIntents))
	for i, in := range classifiableIntents {
		labels[i] = string(in)
	}

	system := "You are an intent classifier for a lost-and-found assistant. " +
		"Reply with exactly one label from this list and nothing else: " +
		strings.Join(labels, ", ") + ". " +
		"The user's conversation is currently in the \"" + string(s.Flow) + "\" stage."

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.llm.Complete(cctx, CompletionRequest{
		System:      system,
		User:        text,
		MaxTokens:   20,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("intent classification via model failed, using default", "error", err)
		return "", false
	}

	got := strings.ToLower(strings.Trim(strings.TrimSpace(answer), `"'.`))
	for _, in := range classifiableIntents {
		if got == string(in) {
			return in, true
		}
	}
	c.logger.Debug("model returned unknown intent label", "answer", got)
	return "", false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
