package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
)

// CreateRequest holds the attributes of a new coupon.
type CreateRequest struct {
	Code            string
	DiscountPercent decimal.Decimal
	ValidUntil      time.Time
	MaxUses         *int
}

// UpdateRequest changes the non-nil attributes of a coupon. MaxUses is
// applied only when MaxUsesSet is true, so a nil MaxUses removes the cap.
type UpdateRequest struct {
	Code            *string
	DiscountPercent *decimal.Decimal
	ValidUntil      *time.Time
	MaxUses         *int
	MaxUsesSet      bool
}

// Service exposes coupon lookup and administration.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Check looks up a coupon by code and reports whether it is currently
// redeemable. It does not redeem it.
func (s *Service) Check(ctx context.Context, p auth.Principal, code string) (*Coupon, Result, error) {
	if err := auth.Authorize(p, auth.ActionValidateCoupon).Err(); err != nil {
		return nil, Result{}, err
	}
	c, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, Result{}, errors.Wrap(err, "find coupon")
	}
	return c, Validate(*c, s.now()), nil
}

// Create registers a new coupon.
func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (*Coupon, error) {
	if err := auth.Authorize(p, auth.ActionManageCoupons).Err(); err != nil {
		return nil, err
	}

	now := s.now()
	c := &Coupon{
		ID:              uuid.New().String(),
		Code:            NormalizeCode(req.Code),
		DiscountPercent: req.DiscountPercent.Round(2),
		ValidUntil:      req.ValidUntil,
		MaxUses:         req.MaxUses,
		CreatedAt:       now,
	}
	if err := c.CheckAttributes(now); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// List returns every coupon, newest first.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]Coupon, error) {
	if err := auth.Authorize(p, auth.ActionManageCoupons).Err(); err != nil {
		return nil, err
	}
	coupons, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Get returns a coupon by id.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Coupon, error) {
	if err := auth.Authorize(p, auth.ActionManageCoupons).Err(); err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	return c, nil
}

// Update edits a coupon. Its used count is never changed, and the cap may
// not drop below it. An expiry is only checked against now when it is
// being changed, so already expired coupons stay editable.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, req UpdateRequest) (*Coupon, error) {
	if err := auth.Authorize(p, auth.ActionManageCoupons).Err(); err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}

	var since time.Time
	if req.Code != nil {
		c.Code = NormalizeCode(*req.Code)
	}
	if req.DiscountPercent != nil {
		c.DiscountPercent = req.DiscountPercent.Round(2)
	}
	if req.ValidUntil != nil {
		c.ValidUntil = *req.ValidUntil
		since = s.now()
	}
	if req.MaxUsesSet {
		c.MaxUses = req.MaxUses
	}
	if err := c.CheckAttributes(since); err != nil {
		return nil, err
	}
	if c.MaxUses != nil && *c.MaxUses < c.UsedCount {
		return nil, ErrMaxUsesBelowUsed
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

// Delete removes a coupon that no order has redeemed.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) error {
	if err := auth.Authorize(p, auth.ActionManageCoupons).Err(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	return nil
}
