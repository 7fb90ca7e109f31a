package connector

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/feedsync/backend/internal/domain/integration"
)

// Help Scout webhook events, sent in the X-HelpScout-Event header
const (
	HelpScoutEventTags        = "convo.tags"
	HelpScoutEventNoteCreated = "convo.note.created"
	HelpScoutEventCreated     = "convo.created"
)

type helpscoutPerson struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	First     string `json:"first"`
	Last      string `json:"last"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Type      string `json:"type"`
}

func (p helpscoutPerson) name() string {
	first := firstNonEmpty(p.First, p.FirstName)
	last := firstNonEmpty(p.Last, p.LastName)
	return strings.TrimSpace(first + " " + last)
}

type helpscoutThread struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Body      string          `json:"body"`
	CreatedAt string          `json:"createdAt"`
	CreatedBy helpscoutPerson `json:"createdBy"`
}

// helpscoutTags accepts tags as plain strings or as {"tag": "..."} objects
type helpscoutTags []string

// UnmarshalJSON implements json.Unmarshaler
func (t *helpscoutTags) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Tag  string `json:"tag"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			return err
		}
		out = append(out, firstNonEmpty(obj.Tag, obj.Name))
	}
	*t = out
	return nil
}

type helpscoutConversation struct {
	ID              int64             `json:"id"`
	Number          int64             `json:"number"`
	Type            string            `json:"type"`
	Status          string            `json:"status"`
	Subject         string            `json:"subject"`
	Customer        *helpscoutPerson  `json:"customer"`
	PrimaryCustomer *helpscoutPerson  `json:"primaryCustomer"`
	Tags            helpscoutTags     `json:"tags"`
	Threads         []helpscoutThread `json:"threads"`
	Embedded        struct {
		Threads []helpscoutThread `json:"threads"`
	} `json:"_embedded"`
	Links struct {
		Web struct {
			Href string `json:"href"`
		} `json:"web"`
	} `json:"_links"`
}

func (c helpscoutConversation) customer() (helpscoutPerson, bool) {
	if c.PrimaryCustomer != nil && c.PrimaryCustomer.ID != 0 {
		return *c.PrimaryCustomer, true
	}
	if c.Customer != nil && c.Customer.ID != 0 {
		return *c.Customer, true
	}
	return helpscoutPerson{}, false
}

// threads are newest first, as Help Scout sends them
func (c helpscoutConversation) threads() []helpscoutThread {
	if len(c.Threads) > 0 {
		return c.Threads
	}
	return c.Embedded.Threads
}

func (c helpscoutConversation) hasTag(name string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(strings.TrimSpace(t), name) {
			return true
		}
	}
	return false
}

// latestNote is the most recent note thread, the one that fired the event
func (c helpscoutConversation) latestNote() (helpscoutThread, bool) {
	for _, t := range c.threads() {
		if t.Type == "note" {
			return t, true
		}
	}
	return helpscoutThread{}, false
}

// customerMessage joins the customer-written threads oldest first
func (c helpscoutConversation) customerMessage() string {
	var parts []helpscoutThread
	for _, t := range c.threads() {
		if strings.TrimSpace(t.Body) != "" && (t.Type == "customer" || t.Type == "beaconchat") {
			parts = append(parts, t)
		}
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return parseHelpScoutTime(parts[i].CreatedAt).Before(parseHelpScoutTime(parts[j].CreatedAt))
	})
	texts := make([]string, 0, len(parts))
	for _, t := range parts {
		texts = append(texts, htmlToText(t.Body))
	}
	return strings.TrimSpace(strings.Join(texts, "\n\n"))
}

func (c helpscoutConversation) sourceURL() string {
	if c.Links.Web.Href != "" {
		return c.Links.Web.Href
	}
	return "https://secure.helpscout.net/conversation/" + strconv.FormatInt(c.ID, 10)
}

// HelpScoutConversationTagged fires when a conversation's tags change
type HelpScoutConversationTagged struct {
	Conversation helpscoutConversation
}

// Kind implements integration.Event
func (HelpScoutConversationTagged) Kind() string { return HelpScoutEventTags }

// HelpScoutNoteCreated fires when a note is added to a conversation
type HelpScoutNoteCreated struct {
	Conversation helpscoutConversation
}

// Kind implements integration.Event
func (HelpScoutNoteCreated) Kind() string { return HelpScoutEventNoteCreated }

// HelpScoutConversationCreated fires for new conversations
type HelpScoutConversationCreated struct {
	Conversation helpscoutConversation
}

// Kind implements integration.Event
func (HelpScoutConversationCreated) Kind() string { return HelpScoutEventCreated }

// DecodeHelpScoutEvent decodes the body of the event named in the header
func DecodeHelpScoutEvent(eventType string, payload []byte) (integration.Event, error) {
	switch eventType {
	case HelpScoutEventTags, HelpScoutEventNoteCreated, HelpScoutEventCreated:
	default:
		return integration.UnknownEvent{Type: eventType}, nil
	}

	var conv helpscoutConversation
	if err := decodeJSON(payload, &conv); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMalformedPayload, err)
	}
	if conv.ID == 0 {
		return nil, fmt.Errorf("%w: conversation without id", integration.ErrMalformedPayload)
	}

	switch eventType {
	case HelpScoutEventTags:
		return HelpScoutConversationTagged{Conversation: conv}, nil
	case HelpScoutEventNoteCreated:
		return HelpScoutNoteCreated{Conversation: conv}, nil
	default:
		return HelpScoutConversationCreated{Conversation: conv}, nil
	}
}

func parseHelpScoutTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
