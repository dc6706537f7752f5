package coupon

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/fault"
)

// Rejection reasons reported to clients.
const (
	ReasonExpired           = "Expired"
	ReasonUsageLimitReached = "Usage limit reached"
)

var (
	// ErrNotFound is returned when no coupon matches a code.
	ErrNotFound = fault.New(fault.KindNotFound, "coupon not found")
	// ErrExpired is returned when a coupon is past its validity date.
	ErrExpired = fault.New(fault.KindConflict, ReasonExpired)
	// ErrUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrUsageLimitReached = fault.New(fault.KindConflict, ReasonUsageLimitReached)
	// ErrInvalidCoupon is returned when coupon attributes are out of range.
	ErrInvalidCoupon = fault.New(fault.KindInvalidInput,
		"invalid coupon: code required, discount must be within 0-100, validUntil must be in the future, max uses must be within 0-2147483647")
	// ErrDuplicateCode is returned when creating a coupon whose code is taken.
	ErrDuplicateCode = fault.New(fault.KindConflict, "coupon code already exists")
	// ErrMaxUsesBelowUsed is returned when an update would cap a coupon
	// below the redemptions it already has.
	ErrMaxUsesBelowUsed = fault.New(fault.KindConflict, "max uses is below the coupon's used count")
	// ErrInUse is returned when deleting a coupon that orders reference.
	ErrInUse = fault.New(fault.KindConflict, "coupon has been redeemed by orders")
)

// MaxUsesLimit is the largest redemption cap a coupon can carry.
const MaxUsesLimit = math.MaxInt32

// Coupon is a percentage discount redeemable until ValidUntil, optionally
// capped at MaxUses redemptions.
type Coupon struct {
	ID              string
	Code            string
	DiscountPercent decimal.Decimal
	ValidUntil      time.Time
	MaxUses         *int
	UsedCount       int
	CreatedAt       time.Time
}

// CheckAttributes reports ErrInvalidCoupon unless c has a code, a discount
// within 0-100, an expiry after now and a cap within 0-MaxUsesLimit.
func (c Coupon) CheckAttributes(now time.Time) error {
	switch {
	case NormalizeCode(c.Code) == "",
		c.DiscountPercent.IsNegative(),
		c.DiscountPercent.GreaterThan(decimal.NewFromInt(100)),
		c.ValidUntil.IsZero(),
		!c.ValidUntil.After(now),
		c.MaxUses != nil && (*c.MaxUses < 0 || *c.MaxUses > MaxUsesLimit):
		return ErrInvalidCoupon
	}
	return nil
}

// NormalizeCode canonicalizes a user-supplied code for lookup and storage.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository stores coupons. Redemption happens in the order repository,
// inside the order-creation transaction.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	// List returns coupons newest first.
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	// Update overwrites the editable attributes of c. It must fail with
	// ErrMaxUsesBelowUsed instead of capping below the stored used count,
	// and never touches used_count.
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
}
