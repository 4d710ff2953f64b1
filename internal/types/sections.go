package types

import (
	"encoding/json"
	"fmt"
)

// SectionPayload is the typed form of one section's content. Each section name
// has exactly one concrete payload type; see NewSectionPayload.
type SectionPayload interface {
	Section() SectionName
}

// Common holds company-wide facts shown in the footer and structured data.
type Common struct {
	CompanyName    string `json:"companyName"`
	PhoneNumber    string `json:"phoneNumber"`
	Address        string `json:"address"`
	BusinessNumber string `json:"businessNumber"`
	Copyright      string `json:"copyright"`
}

func (Common) Section() SectionName { return SectionCommon }

// HeaderNav holds the labels of the header anchor links.
type HeaderNav struct {
	USP      string `json:"usp"`
	Reviews  string `json:"reviews"`
	Location string `json:"location"`
	Event    string `json:"event"`
	FAQ      string `json:"faq"`
}

type Header struct {
	Nav HeaderNav `json:"nav"`
}

func (Header) Section() SectionName { return SectionHeader }

type Footer struct {
	CustomerCenter string `json:"customerCenter"`
	OperatingHours string `json:"operatingHours"`
}

func (Footer) Section() SectionName { return SectionFooter }

type FAQItem struct {
	Q string `json:"q"`
	A string `json:"a"`
}

type FAQ struct {
	Title string    `json:"title"`
	Items []FAQItem `json:"items"`
}

func (FAQ) Section() SectionName { return SectionFAQ }

// EventPlan is one purchasable plan inside the event section.
type EventPlan struct {
	Tag          string   `json:"tag"`
	Icon         string   `json:"icon"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	BenefitLabel string   `json:"benefitLabel"`
	BenefitBadge string   `json:"benefitBadge"`
	BenefitText  string   `json:"benefitText"`
	Features     []string `json:"features"`
	CTAText      string   `json:"ctaText"`
	CTALink      string   `json:"ctaLink"`
	Highlighted  bool     `json:"highlighted"`
}

type Event struct {
	Badge          string      `json:"badge"`
	Title          string      `json:"title"`
	TitleHighlight string      `json:"titleHighlight"`
	Subtitle       string      `json:"subtitle"`
	UrgencyNote    string      `json:"urgencyNote"`
	Plans          []EventPlan `json:"plans"`
	Disclaimer     string      `json:"disclaimer"`
}

func (Event) Section() SectionName { return SectionEvent }

// Review is a static testimonial used when live reviews cannot be fetched.
type Review struct {
	ID    int    `json:"id"`
	Image string `json:"image"`
	Text  string `json:"text"`
	Name  string `json:"name"`
	Date  string `json:"date,omitempty"`
}

type FallbackReviews []Review

func (FallbackReviews) Section() SectionName { return SectionFallbackReviews }

type PriceCompetitor struct {
	Label string   `json:"label"`
	Price string   `json:"price"`
	Cons  []string `json:"cons"`
}

type PriceOurs struct {
	Badge     string   `json:"badge"`
	Label     string   `json:"label"`
	Price     string   `json:"price"`
	PriceNote string   `json:"priceNote"`
	Pros      []string `json:"pros"`
	CTAText   string   `json:"ctaText"`
	CTALink   string   `json:"ctaLink"`
}

type PriceAnchor struct {
	Title      string          `json:"title"`
	Subtitle   string          `json:"subtitle"`
	Competitor PriceCompetitor `json:"competitor"`
	Ours       PriceOurs       `json:"ours"`
}

func (PriceAnchor) Section() SectionName { return SectionPriceAnchor }

// Media maps named image slots to public asset paths.
type Media struct {
	Logo            string            `json:"logo"`
	HeroBackground  string            `json:"heroBackground"`
	MapImage        string            `json:"mapImage"`
	SpeakerIcon     string            `json:"speakerIcon"`
	EventBackground string            `json:"eventBackground"`
	USPImages       map[string]string `json:"uspImages,omitempty"`
	IntentImages    map[string]string `json:"intentImages,omitempty"`
}

func (Media) Section() SectionName { return SectionMedia }

type TrustBarItem struct {
	Value  string `json:"value"`
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
	Label  string `json:"label,omitempty"`
}

type TrustBar []TrustBarItem

func (TrustBar) Section() SectionName { return SectionTrustBar }

type USPCard struct {
	Badge       string `json:"badge"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type USPCards []USPCard

func (USPCards) Section() SectionName { return SectionUSPCards }

type ProgramItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Badge       string `json:"badge"`
}

type ProgramTeaser struct {
	Title          string        `json:"title"`
	TitleHighlight string        `json:"titleHighlight"`
	Subtitle       string        `json:"subtitle"`
	CTAText        string        `json:"ctaText"`
	Programs       []ProgramItem `json:"programs"`
}

func (ProgramTeaser) Section() SectionName { return SectionProgramTeaser }

type LocationFeature struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Location struct {
	StationName   string            `json:"stationName"`
	WalkTime      string            `json:"walkTime"`
	Subtitle      string            `json:"subtitle"`
	MapLink       string            `json:"mapLink"`
	MapButtonText string            `json:"mapButtonText"`
	Features      []LocationFeature `json:"features"`
}

func (Location) Section() SectionName { return SectionLocation }

// NewSectionPayload returns a zero payload of the concrete type for name.
func NewSectionPayload(name SectionName) (SectionPayload, error) {
	switch name {
	case SectionCommon:
		return &Common{}, nil
	case SectionHeader:
		return &Header{}, nil
	case SectionFooter:
		return &Footer{}, nil
	case SectionFAQ:
		return &FAQ{}, nil
	case SectionEvent:
		return &Event{}, nil
	case SectionFallbackReviews:
		return &FallbackReviews{}, nil
	case SectionPriceAnchor:
		return &PriceAnchor{}, nil
	case SectionMedia:
		return &Media{}, nil
	case SectionTrustBar:
		return &TrustBar{}, nil
	case SectionUSPCards:
		return &USPCards{}, nil
	case SectionProgramTeaser:
		return &ProgramTeaser{}, nil
	case SectionLocation:
		return &Location{}, nil
	}
	return nil, fmt.Errorf("unknown section %q", name)
}

// DecodeSection parses raw into the payload type registered for name.
// Unknown fields are tolerated; type mismatches are not.
func DecodeSection(name SectionName, raw json.RawMessage) (SectionPayload, error) {
	p, err := NewSectionPayload(name)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}
