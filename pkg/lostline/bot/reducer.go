// reducer.go applies a classified intent to a session. Each intent maps to a
// pure transition function so individual transitions can be unit tested
// without the orchestrator. Intents with no entry in the table leave the
// session untouched; conversation history is appended outside the reducer.
package bot

import "strings"

// transition mutates the session in response to one intent. The session is
// exclusively owned by the calling request, so in-place mutation is safe.
type transition func(s *Session, text string)

var transitions = map[Intent]transition{
	IntentGreeting: func(s *Session, _ string) {
		if s.Report == nil && s.Flow != FlowVerification {
			s.Flow = FlowInitialGreeting
		}
	},
	IntentProvideItemDescription: func(s *Session, text string) {
		if s.Flow != FlowLostItemReport && s.Flow != "" {
			return
		}
		s.EnsureReport().Description = strings.TrimSpace(text)
		s.Flow = FlowCollectingContact
	},
	IntentProvideLocation: func(s *Session, text string) {
		if s.Report != nil {
			s.Report.Location = strings.TrimSpace(text)
		}
	},
	IntentProvideName: func(s *Session, text string) {
		name := strings.TrimSpace(text)
		s.DisplayName = name
		if s.Report != nil {
			s.Report.Name = name
		}
	},
	IntentProvidePhone: func(s *Session, text string) {
		phone := NormalizePhone(text)
		s.Phone = phone
		if s.Report != nil {
			s.Report.Phone = phone
		}
	},
	IntentProvideTime: func(s *Session, text string) {
		if s.Report != nil {
			s.Report.TimeLost = strings.TrimSpace(text)
		}
	},
	IntentLearnAboutCompany: func(s *Session, _ string) {
		s.Flow = FlowCompanyInfo
	},
	IntentRequestHelp: func(s *Session, _ string) {
		s.Flow = FlowHelp
	},
}

// Reduce advances the session state machine for one classified message.
// report_lost_item always guarantees a report record exists and the flow is
// lost_item_report before anything else happens.
func Reduce(s *Session, c Classification, text string) {
	if c.Intent == IntentReportLostItem {
		s.EnsureReport()
		s.Flow = FlowLostItemReport
	}
	if fn, ok := transitions[c.Intent]; ok {
		fn(s, text)
	}
}

// NormalizePhone applies the single-default-country-code heuristic:
// trim; keep a leading "+" but strip every other non-digit character; a bare
// 10-digit result is assumed US/Canada and gets "+1", anything else just
// gets "+". Known limitation: local numbers from other countries without a
// "+" prefix come out wrong.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	prefixed := strings.HasPrefix(raw, "+")

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if prefixed {
		return "+" + digits
	}
	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}
