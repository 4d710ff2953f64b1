// Package preview implements the live preview bridge between the admin
// editor and a preview replica of the landing page. Draft state flows only
// through messages; nothing here reads or writes the config store.
package preview

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType discriminates preview messages.
type MessageType string

const (
	TypeUpdate    MessageType = "PREVIEW_UPDATE"
	TypeScrollTo  MessageType = "PREVIEW_SCROLL_TO"
	TypeHighlight MessageType = "PREVIEW_HIGHLIGHT"
	TypeReady     MessageType = "PREVIEW_READY"
)

// Section names the editor panel an update came from.
type Section string

const (
	SectionCommon           Section = "common"
	SectionHeader           Section = "header"
	SectionFooter           Section = "footer"
	SectionFAQ              Section = "faq"
	SectionEvent            Section = "event"
	SectionMedia            Section = "media"
	SectionIntentHero       Section = "intent-hero"
	SectionIntentProblem    Section = "intent-problem"
	SectionIntentCurriculum Section = "intent-curriculum"
	SectionIntentOffer      Section = "intent-offer"
	SectionIntentTheme      Section = "intent-theme"
)

// scrollTargets maps each section to the page anchor it is rendered under.
var scrollTargets = map[Section]string{
	SectionCommon:           "header",
	SectionHeader:           "header",
	SectionFooter:           "footer",
	SectionFAQ:              "faq",
	SectionEvent:            "event",
	SectionMedia:            "hero",
	SectionIntentHero:       "hero",
	SectionIntentProblem:    "usp",
	SectionIntentCurriculum: "usp",
	SectionIntentOffer:      "price",
	SectionIntentTheme:      "hero",
}

// ScrollTarget returns the page anchor for s.
func ScrollTarget(s Section) (string, bool) {
	id, ok := scrollTargets[s]
	return id, ok
}

// IsValid reports whether s is a known preview section.
func (s Section) IsValid() bool {
	_, ok := scrollTargets[s]
	return ok
}

var (
	ErrForeignOrigin  = errors.New("message from foreign origin")
	ErrUnknownType    = errors.New("unknown preview message type")
	ErrInvalidSection = errors.New("invalid preview section")
)

// Message is the preview wire message.
type Message struct {
	Type    MessageType     `json:"type"`
	Section Section         `json:"section,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Intent  string          `json:"intent,omitempty"`
	Theme   string          `json:"theme,omitempty"`
}

// Validate checks the type and, for section-scoped messages, the section.
func (m Message) Validate() error {
	switch m.Type {
	case TypeReady:
		return nil
	case TypeUpdate, TypeScrollTo, TypeHighlight:
		if !m.Section.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidSection, m.Section)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// Envelope is a received message together with the origin of its sender.
type Envelope struct {
	Origin string
	Data   Message
}

// Port delivers messages to the other side of the bridge. targetOrigin
// restricts delivery to a receiver on that origin.
type Port interface {
	PostMessage(msg Message, targetOrigin string) error
}

// PortFunc adapts a function to Port.
type PortFunc func(msg Message, targetOrigin string) error

func (f PortFunc) PostMessage(msg Message, targetOrigin string) error {
	return f(msg, targetOrigin)
}
