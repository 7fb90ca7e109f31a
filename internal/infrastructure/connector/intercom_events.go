package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/feedsync/backend/internal/domain/integration"
)

// Intercom webhook topics
const (
	IntercomTopicPing           = "ping"
	IntercomTopicUserCreated    = "user.created"
	IntercomTopicContactCreated = "contact.created"
	IntercomTopicPartTagged     = "conversation_part.tag.created"
	IntercomTopicAdminNoted     = "conversation.admin.noted"
)

type intercomNotification struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	AppID string `json:"app_id"`
	Data  struct {
		Item rawJSON `json:"item"`
	} `json:"data"`
}

type intercomCompanyRef struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
}

// intercomCompanyRefs accepts both the contacts API shape ({"data": [...]})
// and the legacy user shape ({"companies": [...]})
type intercomCompanyRefs struct {
	Data      []intercomCompanyRef `json:"data"`
	Companies []intercomCompanyRef `json:"companies"`
}

func (r intercomCompanyRefs) first() (intercomCompanyRef, bool) {
	if len(r.Data) > 0 {
		return r.Data[0], true
	}
	if len(r.Companies) > 0 {
		return r.Companies[0], true
	}
	return intercomCompanyRef{}, false
}

type intercomContact struct {
	ID               string              `json:"id"`
	ExternalID       string              `json:"external_id"`
	UserID           string              `json:"user_id"`
	Role             string              `json:"role"`
	Email            string              `json:"email"`
	Name             string              `json:"name"`
	Phone            string              `json:"phone"`
	UpdatedAt        int64               `json:"updated_at"`
	LastSeenAt       int64               `json:"last_seen_at"`
	CustomAttributes map[string]any      `json:"custom_attributes"`
	Companies        intercomCompanyRefs `json:"companies"`
}

func (c intercomContact) externalID() string {
	return firstNonEmpty(c.ExternalID, c.UserID)
}

type intercomPlan struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type intercomCompany struct {
	ID               string         `json:"id"`
	CompanyID        string         `json:"company_id"`
	Name             string         `json:"name"`
	Plan             *intercomPlan  `json:"plan"`
	MonthlySpend     *float64       `json:"monthly_spend"`
	UpdatedAt        int64          `json:"updated_at"`
	CustomAttributes map[string]any `json:"custom_attributes"`
}

func (c intercomCompany) planName() string {
	if c.Plan == nil {
		return ""
	}
	return c.Plan.Name
}

type intercomAuthor struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type intercomPart struct {
	ID       string         `json:"id"`
	PartType string         `json:"part_type"`
	Body     string         `json:"body"`
	Author   intercomAuthor `json:"author"`
}

type intercomTag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type intercomConversation struct {
	ID    string `json:"id"`
	Links struct {
		ConversationWeb string `json:"conversation_web"`
	} `json:"links"`
	User     intercomContact `json:"user"`
	Contacts struct {
		Contacts []intercomContact `json:"contacts"`
	} `json:"contacts"`
	ConversationParts struct {
		ConversationParts []intercomPart `json:"conversation_parts"`
	} `json:"conversation_parts"`
	TagsAdded struct {
		Tags []intercomTag `json:"tags"`
	} `json:"tags_added"`
}

// customer is the end-customer the conversation is with
func (c intercomConversation) customer() (intercomContact, bool) {
	if c.User.ID != "" || c.User.Email != "" {
		return c.User, true
	}
	if len(c.Contacts.Contacts) > 0 {
		return c.Contacts.Contacts[0], true
	}
	return intercomContact{}, false
}

func (c intercomConversation) firstPart() (intercomPart, bool) {
	if len(c.ConversationParts.ConversationParts) == 0 {
		return intercomPart{}, false
	}
	return c.ConversationParts.ConversationParts[0], true
}

func (c intercomConversation) sourceURL(appID string) string {
	if c.Links.ConversationWeb != "" {
		return c.Links.ConversationWeb
	}
	return fmt.Sprintf("https://app.intercom.com/a/apps/%s/inbox/inbox/all/conversations/%s", appID, c.ID)
}

// IntercomPing is the subscription test event
type IntercomPing struct{}

// Kind implements integration.Event
func (IntercomPing) Kind() string { return IntercomTopicPing }

// IntercomContactCreated announces a new user or contact
type IntercomContactCreated struct {
	Topic   string
	Contact intercomContact
}

// Kind implements integration.Event
func (e IntercomContactCreated) Kind() string { return e.Topic }

// IntercomPartTagged is a tag added to a conversation part
type IntercomPartTagged struct {
	AppID        string
	Conversation intercomConversation
}

// Kind implements integration.Event
func (IntercomPartTagged) Kind() string { return IntercomTopicPartTagged }

// HasTag reports whether name was among the added tags
func (e IntercomPartTagged) HasTag(name string) bool {
	for _, t := range e.Conversation.TagsAdded.Tags {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// IntercomAdminNoted is a note written by an admin
type IntercomAdminNoted struct {
	AppID        string
	Conversation intercomConversation
}

// Kind implements integration.Event
func (IntercomAdminNoted) Kind() string { return IntercomTopicAdminNoted }

// DecodeIntercomEvent decodes a notification into its event variant
func DecodeIntercomEvent(payload []byte) (integration.Event, error) {
	var n intercomNotification
	if err := decodeJSON(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMalformedPayload, err)
	}
	if n.Type != "notification_event" || n.Topic == "" {
		return nil, fmt.Errorf("%w: not a notification event", integration.ErrMalformedPayload)
	}

	switch n.Topic {
	case IntercomTopicPing:
		return IntercomPing{}, nil
	case IntercomTopicUserCreated, IntercomTopicContactCreated:
		var c intercomContact
		if err := n.Data.Item.decode(&c); err != nil {
			return nil, err
		}
		return IntercomContactCreated{Topic: n.Topic, Contact: c}, nil
	case IntercomTopicPartTagged:
		var conv intercomConversation
		if err := n.Data.Item.decode(&conv); err != nil {
			return nil, err
		}
		return IntercomPartTagged{AppID: n.AppID, Conversation: conv}, nil
	case IntercomTopicAdminNoted:
		var conv intercomConversation
		if err := n.Data.Item.decode(&conv); err != nil {
			return nil, err
		}
		return IntercomAdminNoted{AppID: n.AppID, Conversation: conv}, nil
	default:
		return integration.UnknownEvent{Type: n.Topic}, nil
	}
}

// rawJSON defers decoding of a nested object
type rawJSON []byte

// UnmarshalJSON implements json.Unmarshaler
func (r *rawJSON) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

func (r rawJSON) decode(out any) error {
	if len(r) == 0 || string(r) == "null" {
		return fmt.Errorf("%w: missing data.item", integration.ErrMalformedPayload)
	}
	if err := decodeJSON(r, out); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrMalformedPayload, err)
	}
	return nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
