// Package bot implements the conversational core of LostLine: the per-user
// session model, intent classification, flow transitions, response
// generation, and the orchestrator that ties them together per inbound
// message. Channels and HTTP surfaces live in their own packages and only
// talk to the orchestrator.
package bot

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxHistoryEntries is the sliding-window size of the conversation history.
// Older entries are evicted first.
const MaxHistoryEntries = 20

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Flow is the discrete stage of a user's conversation. It drives both
// classification context and the deterministic response templates.
type Flow string

const (
	FlowInitialGreeting   Flow = "initial_greeting"
	FlowLostItemReport    Flow = "lost_item_report"
	FlowCollectingContact Flow = "collecting_contact_info"
	FlowCompanyInfo       Flow = "company_info"
	FlowVerification      Flow = "verification"
	FlowHelp              Flow = "help"
)

// ReportStatus is the lifecycle status of a filed lost-item report.
type ReportStatus string

const (
	StatusPending   ReportStatus = "PENDING"
	StatusClaimed   ReportStatus = "CLAIMED"
	StatusUnclaimed ReportStatus = "UNCLAIMED"
)

// HistoryEntry is one message in the conversation history.
type HistoryEntry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MediaItem is one received media reference. The log is append-only and
// independent of the current flow.
type MediaItem struct {
	ID         string    `json:"id"`
	Reference  string    `json:"reference"`
	ReceivedAt time.Time `json:"received_at"`
}

// LostItemReport is the structured submission assembled across turns.
// ReferenceNumber is set exactly once when the report is finalized and is
// never regenerated afterwards.
type LostItemReport struct {
	Description     string       `json:"description,omitempty"`
	Name            string       `json:"name,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	Location        string       `json:"location,omitempty"`
	TimeLost        string       `json:"time_lost,omitempty"`
	Images          []string     `json:"images,omitempty"`
	ReferenceNumber string       `json:"reference_number,omitempty"`
	Status          ReportStatus `json:"status,omitempty"`
}

// Complete reports whether all required fields have been collected.
// TimeLost and images are optional.
func (r *LostItemReport) Complete() bool {
	return r.Description != "" && r.Name != "" && r.Phone != "" && r.Location != ""
}

// MissingField returns the first uncollected required field, in the fixed
// collection order, or "" when the report is complete.
func (r *LostItemReport) MissingField() string {
	switch {
	case r.Description == "":
		return "description"
	case r.Name == "":
		return "name"
	case r.Phone == "":
		return "phone"
	case r.Location == "":
		return "location"
	}
	return ""
}

// Session is the per-identity conversation state. It is owned exclusively by
// the single in-flight request handling that identity; nothing mutates it
// concurrently within a request, so it carries no lock.
type Session struct {
	UserIdentity   string          `json:"user_identity"`
	DisplayName    string          `json:"display_name,omitempty"`
	RawAddress     string          `json:"raw_address"`
	Phone          string          `json:"phone,omitempty"`
	History        []HistoryEntry  `json:"history,omitempty"`
	Flow           Flow            `json:"flow"`
	Report         *LostItemReport `json:"report,omitempty"`
	Media          []MediaItem     `json:"media,omitempty"`
	FirstContactAt time.Time       `json:"first_contact_at"`
	LastMessageAt  time.Time       `json:"last_message_at"`
}

// NormalizeIdentity derives the stable session key from a channel-native
// address by stripping every non-alphanumeric rune. The same raw address
// always maps to the same key ("whatsapp:+15551234567" → "whatsapp15551234567").
func NormalizeIdentity(rawAddress string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, rawAddress)
}

// NewSession creates a fresh session for a raw channel address.
// FirstContactAt is set here and never overwritten afterwards.
func NewSession(rawAddress, displayName string) *Session {
	now := time.Now()
	return &Session{
		UserIdentity:   NormalizeIdentity(rawAddress),
		DisplayName:    displayName,
		RawAddress:     rawAddress,
		Flow:           FlowInitialGreeting,
		FirstContactAt: now,
		LastMessageAt:  now,
	}
}

// Reset returns a fresh session preserving only the identity fields:
// UserIdentity, DisplayName, RawAddress, and FirstContactAt. History, flow,
// report, and media are all dropped.
func (s *Session) Reset() *Session {
	return &Session{
		UserIdentity:   s.UserIdentity,
		DisplayName:    s.DisplayName,
		RawAddress:     s.RawAddress,
		Flow:           FlowInitialGreeting,
		FirstContactAt: s.FirstContactAt,
		LastMessageAt:  time.Now(),
	}
}

// AppendHistory adds an entry and trims the window to MaxHistoryEntries,
// evicting the oldest entries first.
func (s *Session) AppendHistory(role Role, text string) {
	s.History = append(s.History, HistoryEntry{
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	})
	if len(s.History) > MaxHistoryEntries {
		s.History = s.History[len(s.History)-MaxHistoryEntries:]
	}
}

// RecentHistory returns the last maxEntries history entries, oldest first.
func (s *Session) RecentHistory(maxEntries int) []HistoryEntry {
	if len(s.History) <= maxEntries {
		return s.History
	}
	return s.History[len(s.History)-maxEntries:]
}

// Touch records an inbound message timestamp.
func (s *Session) Touch() {
	s.LastMessageAt = time.Now()
}

// EnsureReport creates the nested report record if it does not exist yet.
func (s *Session) EnsureReport() *LostItemReport {
	if s.Report == nil {
		s.Report = &LostItemReport{}
	}
	return s.Report
}

// AddMedia appends a media reference to the append-only media log. When the
// session is in the lost-item flow the reference is also attached to the
// report's image list.
func (s *Session) AddMedia(reference string) {
	s.Media = append(s.Media, MediaItem{
		ID:         uuid.NewString(),
		Reference:  reference,
		ReceivedAt: time.Now(),
	})
	if s.Flow == FlowLostItemReport && s.Report != nil {
		s.Report.Images = append(s.Report.Images, reference)
	}
}
