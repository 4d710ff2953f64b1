package types

// SectionName identifies a top-level key of the site configuration document.
type SectionName string

const (
	SectionCommon          SectionName = "common"
	SectionHeader          SectionName = "header"
	SectionFooter          SectionName = "footer"
	SectionFAQ             SectionName = "faq"
	SectionEvent           SectionName = "event"
	SectionFallbackReviews SectionName = "fallbackReviews"
	SectionPriceAnchor     SectionName = "priceAnchor"
	SectionMedia           SectionName = "media"
	SectionTrustBar        SectionName = "trustBar"
	SectionUSPCards        SectionName = "uspCards"
	SectionProgramTeaser   SectionName = "programTeaser"
	SectionLocation        SectionName = "location"
)

// LandingKey is the document key holding the per-intent content map.
const LandingKey = "landing"

// Sections lists every section the admin API may read or write, in display order.
var Sections = []SectionName{
	SectionCommon,
	SectionHeader,
	SectionFooter,
	SectionFAQ,
	SectionEvent,
	SectionFallbackReviews,
	SectionPriceAnchor,
	SectionMedia,
	SectionTrustBar,
	SectionUSPCards,
	SectionProgramTeaser,
	SectionLocation,
}

// IsValid reports whether s is one of the whitelisted sections.
func (s SectionName) IsValid() bool {
	for _, v := range Sections {
		if v == s {
			return true
		}
	}
	return false
}

// IntentKey identifies one of the landing page visitor segments.
type IntentKey string

const (
	IntentSpeed    IntentKey = "speed"
	IntentSkill    IntentKey = "skill"
	IntentCost     IntentKey = "cost"
	IntentPhobia   IntentKey = "phobia"
	IntentPractice IntentKey = "practice"
)

// Intents is the closed set of landing intents.
var Intents = []IntentKey{IntentSpeed, IntentSkill, IntentCost, IntentPhobia, IntentPractice}

// DefaultIntent is rendered when a request names no intent or an unknown one.
const DefaultIntent = IntentCost

// IsValid reports whether k is one of the fixed intents.
func (k IntentKey) IsValid() bool {
	for _, v := range Intents {
		if v == k {
			return true
		}
	}
	return false
}

// ParseIntent returns the intent for s, falling back to DefaultIntent.
func ParseIntent(s string) IntentKey {
	if k := IntentKey(s); k.IsValid() {
		return k
	}
	return DefaultIntent
}

// LoginRequest is the body of POST /api/admin/auth/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// SuccessResponse acknowledges a mutation.
type SuccessResponse struct {
	Success bool  `json:"success"`
	Version int64 `json:"version,omitempty"`
}

// VerifyResponse is returned by GET /api/admin/auth/verify.
type VerifyResponse struct {
	Authenticated bool `json:"authenticated"`
}
