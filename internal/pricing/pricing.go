// Package pricing resolves the best applicable promotional offer for a product
// and computes its discounted price. Exactly one offer applies; offers never
// stack.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"mitienda/backend/internal/domain"
)

var oneHundred = decimal.NewFromInt(100)

// Resolve picks the highest-priority offer applicable to the product and
// returns the resulting quote. Ties on priority keep the first offer
// encountered. The final price is clamped at zero, and HasDiscount is only
// true when the applied offer actually lowers the price (a special price at or
// above the original is not a discount).
func Resolve(product domain.Product, activeOffers []domain.Offer) domain.PriceQuote {
	quote := domain.PriceQuote{
		OriginalPrice: product.Price,
		FinalPrice:    product.Price,
	}
	if len(activeOffers) == 0 {
		return quote
	}

	var applied *domain.Offer
	for i := range activeOffers {
		offer := &activeOffers[i]
		if !applies(offer, product) {
			continue
		}
		if applied == nil || offer.Priority > applied.Priority {
			applied = offer
		}
	}
	if applied == nil {
		return quote
	}

	final := product.Price
	switch applied.Kind {
	case domain.OfferKindPercentage:
		final = product.Price.Mul(oneHundred.Sub(applied.Value)).Div(oneHundred)
	case domain.OfferKindFixedAmount:
		final = product.Price.Sub(applied.Value)
	case domain.OfferKindSpecialPrice:
		final = applied.Value
	}
	if final.IsNegative() {
		final = decimal.Zero
	}

	quote.FinalPrice = final
	quote.AppliedOffer = applied
	quote.HasDiscount = final.LessThan(product.Price)
	return quote
}

func applies(offer *domain.Offer, product domain.Product) bool {
	switch offer.Scope {
	case domain.OfferScopeProduct:
		return offer.ProductID == product.ID
	case domain.OfferScopeCategory:
		return offer.CategoryID != "" && offer.CategoryID == product.CategoryID
	case domain.OfferScopeGeneral:
		return true
	}
	return false
}

// IsLive reports whether the offer is currently in its validity window. An
// offer with no start date is never live; an offer with no end date stays live
// indefinitely once started. The end date is compared against the start of the
// current day, so an offer remains live through the whole of its end date.
func IsLive(offer domain.Offer, now time.Time) bool {
	if !offer.Active {
		return false
	}
	if offer.StartDate == nil || offer.StartDate.After(now) {
		return false
	}
	if offer.EndDate == nil {
		return true
	}
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return !offer.EndDate.Before(startOfToday)
}
