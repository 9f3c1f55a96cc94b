// Package validate is the pure sanitization/validation layer for coupon
// creation. No I/O: it turns raw caller input into terms the transaction
// orchestrator can treat as already valid.
package validate

import (
	"fmt"
	"strings"
	"time"

	"couponmarket/internal/model"
)

// Defaults substituted for missing optional numeric fields.
const (
	DefaultMaxUses = 1
)

// CouponInput is the raw creation payload before sanitization. Pointer
// fields distinguish "absent" from zero.
type CouponInput struct {
	Title         string
	Description   string
	DiscountType  string
	DiscountValue int64
	MaxUses       *int
	ExpiresAt     *time.Time
	ValidDays     *int
	Commission    *int64
	Reward        *int64
	IsGlobal      bool
}

// CouponTerms is the sanitized, validated output.
type CouponTerms struct {
	Title         string
	Description   string
	DiscountType  string
	DiscountValue int64
	MaxUses       int
	ExpiresAt     *time.Time
	ValidDays     *int
	Commission    int64
	Reward        int64
	IsGlobal      bool
}

// OwnerProfile is the location slice of the owner account used to default
// targeting.
type OwnerProfile struct {
	Country  string
	City     string
	District string
}

// Targeting is the derived final targeting of a coupon.
type Targeting struct {
	IsGlobal  bool
	Countries []string
	Cities    []string
	Areas     []string
}

// TermsError reports which field of the creation input is invalid. It is a
// validation error in the taxonomy: rejected before any store interaction
// and surfaced verbatim.
type TermsError struct {
	Field  string
	Reason string
}

func (e *TermsError) Error() string {
	return fmt.Sprintf("invalid coupon terms: %s %s", e.Field, e.Reason)
}

// Sanitize trims free-text fields and substitutes documented defaults for
// missing optional numerics. It never rejects; Validate does that.
func Sanitize(in CouponInput) CouponInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.DiscountType = strings.ToUpper(strings.TrimSpace(in.DiscountType))

	if in.MaxUses == nil {
		d := DefaultMaxUses
		in.MaxUses = &d
	}
	if in.Commission == nil {
		var zero int64
		in.Commission = &zero
	}
	if in.Reward == nil {
		var zero int64
		in.Reward = &zero
	}
	return in
}

// Validate checks required fields and cross-field constraints of sanitized
// input and returns the final terms. now anchors the expiry check so the
// function stays pure.
func Validate(in CouponInput, now time.Time) (*CouponTerms, error) {
	if in.Title == "" {
		return nil, &TermsError{Field: "title", Reason: "must not be empty"}
	}
	if in.Description == "" {
		return nil, &TermsError{Field: "description", Reason: "must not be empty"}
	}

	switch in.DiscountType {
	case model.DiscountTypePercentage:
		if in.DiscountValue <= 0 || in.DiscountValue > 100 {
			return nil, &TermsError{Field: "discount_value", Reason: "must be between 1 and 100 for percentage discounts"}
		}
	case model.DiscountTypeFixed:
		if in.DiscountValue <= 0 {
			return nil, &TermsError{Field: "discount_value", Reason: "must be positive"}
		}
	default:
		return nil, &TermsError{Field: "discount_type", Reason: "must be PERCENTAGE or FIXED"}
	}

	if in.MaxUses == nil || *in.MaxUses <= 0 {
		return nil, &TermsError{Field: "max_uses", Reason: "must be a positive integer"}
	}

	// Exactly one of the two validity forms.
	if (in.ExpiresAt == nil) == (in.ValidDays == nil) {
		return nil, &TermsError{Field: "validity", Reason: "exactly one of expires_at and valid_days is required"}
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, &TermsError{Field: "expires_at", Reason: "must be in the future"}
	}
	if in.ValidDays != nil && *in.ValidDays <= 0 {
		return nil, &TermsError{Field: "valid_days", Reason: "must be a positive integer"}
	}

	if in.Commission != nil && *in.Commission < 0 {
		return nil, &TermsError{Field: "commission", Reason: "must not be negative"}
	}
	if in.Reward != nil && *in.Reward < 0 {
		return nil, &TermsError{Field: "reward", Reason: "must not be negative"}
	}

	terms := &CouponTerms{
		Title:         in.Title,
		Description:   in.Description,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		MaxUses:       *in.MaxUses,
		ExpiresAt:     in.ExpiresAt,
		ValidDays:     in.ValidDays,
		IsGlobal:      in.IsGlobal,
	}
	if in.Commission != nil {
		terms.Commission = *in.Commission
	}
	if in.Reward != nil {
		terms.Reward = *in.Reward
	}
	return terms, nil
}

// DeriveTargeting produces the final targeting for a coupon. Global coupons
// carry empty location lists; targeted coupons default to the non-empty
// parts of the owner's location profile.
func DeriveTargeting(profile OwnerProfile, isGlobal bool) Targeting {
	if isGlobal {
		return Targeting{IsGlobal: true}
	}

	t := Targeting{}
	if c := strings.TrimSpace(profile.Country); c != "" {
		t.Countries = []string{c}
	}
	if c := strings.TrimSpace(profile.City); c != "" {
		t.Cities = []string{c}
	}
	if d := strings.TrimSpace(profile.District); d != "" {
		t.Areas = []string{d}
	}
	return t
}
