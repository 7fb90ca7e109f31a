package connector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/feedsync/backend/internal/domain/integration"
)

// Segment message types
const (
	SegmentTypeIdentify = "identify"
	SegmentTypeGroup    = "group"
	SegmentTypeDelete   = "delete"
)

// segmentID accepts ids sent as strings or numbers
type segmentID string

// UnmarshalJSON implements json.Unmarshaler
func (id *segmentID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = segmentID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = segmentID(n.String())
	return nil
}

type segmentMessage struct {
	Type      string         `json:"type"`
	MessageID string         `json:"messageId"`
	UserID    segmentID      `json:"userId"`
	UserIDAlt segmentID      `json:"user_id"`
	GroupID   segmentID      `json:"groupId"`
	Traits    map[string]any `json:"traits"`
}

func (m segmentMessage) userID() string {
	return firstNonEmpty(string(m.UserID), string(m.UserIDAlt))
}

func (m segmentMessage) trait(name string) string {
	switch v := m.Traits[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// SegmentIdentify ties a user id to traits
type SegmentIdentify struct {
	UserID string
	Email  string
	Name   string
	Phone  string
	Traits map[string]any
}

// Kind implements integration.Event
func (SegmentIdentify) Kind() string { return SegmentTypeIdentify }

// SegmentGroup ties a user to an account
type SegmentGroup struct {
	GroupID      string
	UserID       string
	Name         string
	Plan         string
	MonthlySpend *decimal.Decimal
	Traits       map[string]any
}

// Kind implements integration.Event
func (SegmentGroup) Kind() string { return SegmentTypeGroup }

// SegmentDelete asks for a user's data to be removed
type SegmentDelete struct {
	UserID string
}

// Kind implements integration.Event
func (SegmentDelete) Kind() string { return SegmentTypeDelete }

// decodeSegmentEvent turns a schema-valid message into its event variant
func decodeSegmentEvent(payload []byte) (integration.Event, error) {
	var m segmentMessage
	if err := decodeJSON(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMalformedPayload, err)
	}

	switch m.Type {
	case SegmentTypeIdentify:
		name := m.trait("name")
		if name == "" {
			name = strings.TrimSpace(m.trait("firstName") + " " + m.trait("lastName"))
		}
		return SegmentIdentify{
			UserID: m.userID(),
			Email:  m.trait("email"),
			Name:   name,
			Phone:  m.trait("phone"),
			Traits: m.Traits,
		}, nil
	case SegmentTypeGroup:
		g := SegmentGroup{
			GroupID: string(m.GroupID),
			UserID:  m.userID(),
			Name:    m.trait("name"),
			Plan:    m.trait("plan"),
			Traits:  m.Traits,
		}
		spend := m.trait("total billed")
		if spend == "" {
			spend = m.trait("monthly_spend")
		}
		if spend != "" {
			if d, err := decimal.NewFromString(spend); err == nil {
				g.MonthlySpend = &d
			}
		}
		return g, nil
	case SegmentTypeDelete:
		return SegmentDelete{UserID: m.userID()}, nil
	default:
		return integration.UnknownEvent{Type: m.Type}, nil
	}
}
