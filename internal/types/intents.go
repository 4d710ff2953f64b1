package types

import (
	"encoding/json"
	"fmt"
)

// IntentContent is the landing page content for one intent. Hero, problem,
// curriculum, offer and theme are shared; the remaining fields only appear on
// the intent noted beside them.
type IntentContent struct {
	Hero        *Hero       `json:"hero,omitempty"`
	Problem     *Problem    `json:"problem,omitempty"`
	USP         *Problem    `json:"usp,omitempty"`
	Curriculum  *Curriculum `json:"curriculum,omitempty"`
	Offer       *Offer      `json:"offer,omitempty"`
	Theme       string      `json:"theme,omitempty"`
	DesignStyle string      `json:"designStyle,omitempty"`

	Diagnosis *Diagnosis `json:"diagnosis,omitempty"` // skill
	CTA       *CTA       `json:"cta,omitempty"`       // phobia
	CaseStudy *CaseStudy `json:"caseStudy,omitempty"` // speed
	Solution  *Solution  `json:"solution,omitempty"`  // speed
}

type Hero struct {
	Badge    string `json:"badge"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	CTAText  string `json:"ctaText"`
	CTALink  string `json:"ctaLink,omitempty"`
}

type Feature struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Highlight   bool   `json:"highlight,omitempty"`
}

// Problem is the pain-point section. Checklist is only rendered for practice.
type Problem struct {
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	Features  []Feature `json:"features"`
	Checklist []string  `json:"checklist,omitempty"`
}

type CurriculumStep struct {
	Step        string `json:"step"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Curriculum struct {
	Title string           `json:"title"`
	Steps []CurriculumStep `json:"steps"`
}

type Offer struct {
	Title            string   `json:"title"`
	PriceDescription string   `json:"priceDescription"`
	Points           []string `json:"points"`
	CTAText          string   `json:"ctaText"`
	CTALink          string   `json:"ctaLink,omitempty"`
}

type DiagnosisOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Score int    `json:"score"`
}

type DiagnosisQuestion struct {
	ID       int               `json:"id"`
	Question string            `json:"question"`
	Options  []DiagnosisOption `json:"options"`
}

type DiagnosisResult struct {
	MinScore       int    `json:"minScore"`
	MaxScore       int    `json:"maxScore"`
	Level          string `json:"level"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	Color          string `json:"color"`
}

type Diagnosis struct {
	Title     string              `json:"title"`
	Subtitle  string              `json:"subtitle"`
	Questions []DiagnosisQuestion `json:"questions"`
	Results   []DiagnosisResult   `json:"results"`
}

type CTA struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Button   string `json:"button"`
	Link     string `json:"link,omitempty"`
}

type CaseStat struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Negative bool   `json:"negative"`
}

type CaseSide struct {
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle"`
	Image         string     `json:"image"`
	ImageTitle    string     `json:"imageTitle,omitempty"`
	ImageSubtitle string     `json:"imageSubtitle,omitempty"`
	Quote         string     `json:"quote"`
	CTAText       string     `json:"ctaText,omitempty"`
	Stats         []CaseStat `json:"stats"`
}

type CaseStudy struct {
	Badge          string    `json:"badge"`
	Title          string    `json:"title"`
	TitleHighlight string    `json:"titleHighlight"`
	Subtitle       string    `json:"subtitle"`
	Before         *CaseSide `json:"before,omitempty"`
	After          *CaseSide `json:"after,omitempty"`
}

type SolutionItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Solution struct {
	CompetitorTitle string         `json:"competitorTitle"`
	Title           string         `json:"title"`
	Items           []SolutionItem `json:"items"`
}

// DecodeIntent parses raw intent content into its typed form.
func DecodeIntent(key IntentKey, raw json.RawMessage) (*IntentContent, error) {
	if !key.IsValid() {
		return nil, fmt.Errorf("unknown intent %q", key)
	}
	var c IntentContent
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
