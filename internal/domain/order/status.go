package order

import "github.com/xenking/storefront/internal/domain/payment"

// NextStatus returns the lifecycle status an order moves to when its payment
// reaches ps. Approval pays pending orders and revives orders cancelled
// before the customer completed payment. Refunds and chargebacks revert paid
// orders that have not shipped yet; shipped orders are resolved manually.
func NextStatus(cur Status, ps payment.Status) Status {
	switch ps {
	case payment.StatusApproved:
		if cur == StatusPending || cur == StatusCancelled {
			return StatusPaid
		}
	case payment.StatusRefunded, payment.StatusChargedBack:
		if cur == StatusPaid || cur == StatusProcessing {
			return StatusRefunded
		}
	}
	return cur
}
