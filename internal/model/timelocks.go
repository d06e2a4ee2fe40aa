package model

import (
	"time"

	"github.com/pkg/errors"
)

// Timelocks are the four stage boundaries fixed when an order is matched.
//
//	[.., ResolverCompletion)               resolver may complete
//	[ResolverCompletion, PublicCompletion) anyone holding the secret may complete
//	[PublicCompletion, ResolverRefund)     no action, destination claims settle
//	[ResolverRefund, PublicRefund)         maker or resolver may refund
//	[PublicRefund, ..)                     anyone may refund
type Timelocks struct {
	ResolverCompletion time.Time `gorm:"column:resolver_completion" json:"resolver_completion"`
	PublicCompletion   time.Time `gorm:"column:public_completion" json:"public_completion"`
	ResolverRefund     time.Time `gorm:"column:resolver_refund" json:"resolver_refund"`
	PublicRefund       time.Time `gorm:"column:public_refund" json:"public_refund"`
}

// NewTimelocks builds the stages and validates their ordering once.
func NewTimelocks(resolverCompletion, publicCompletion, resolverRefund, publicRefund time.Time) (Timelocks, error) {
	t := Timelocks{
		ResolverCompletion: resolverCompletion.UTC(),
		PublicCompletion:   publicCompletion.UTC(),
		ResolverRefund:     resolverRefund.UTC(),
		PublicRefund:       publicRefund.UTC(),
	}
	if err := t.Validate(); err != nil {
		return Timelocks{}, err
	}
	return t, nil
}

// DefaultTimelocks spreads the stages over a chain's timelock duration d.
func DefaultTimelocks(now time.Time, d time.Duration) (Timelocks, error) {
	if d <= 0 {
		return Timelocks{}, errors.Wrap(ErrInvalidTimelocks, "timelock duration must be positive")
	}
	return NewTimelocks(
		now.Add(d/4),
		now.Add(d/2),
		now.Add(d),
		now.Add(d+d/2),
	)
}

func (t Timelocks) Validate() error {
	if t.ResolverCompletion.IsZero() {
		return errors.Wrap(ErrInvalidTimelocks, "resolver completion stage is unset")
	}
	if !t.ResolverCompletion.Before(t.PublicCompletion) ||
		!t.PublicCompletion.Before(t.ResolverRefund) ||
		!t.ResolverRefund.Before(t.PublicRefund) {
		return ErrInvalidTimelocks
	}
	return nil
}

func (t Timelocks) IsZero() bool {
	return t.ResolverCompletion.IsZero() && t.PublicCompletion.IsZero() &&
		t.ResolverRefund.IsZero() && t.PublicRefund.IsZero()
}

// CanComplete reports whether a completion at now is inside the window for
// the given caller class.
func (t Timelocks) CanComplete(now time.Time, byResolver bool) error {
	if !now.Before(t.PublicCompletion) {
		return ErrCompletionWindowClosed
	}
	if !byResolver && now.Before(t.ResolverCompletion) {
		return ErrCompletionNotOpen
	}
	return nil
}

// CanRefund mirrors CanComplete for the refund stages. privileged is true
// for the maker and the resolver.
func (t Timelocks) CanRefund(now time.Time, privileged bool) error {
	if now.Before(t.ResolverRefund) {
		return ErrRefundNotOpen
	}
	if !privileged && now.Before(t.PublicRefund) {
		return ErrUnauthorizedRefund
	}
	return nil
}
