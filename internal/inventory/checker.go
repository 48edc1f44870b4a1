package inventory

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// AvailabilityReader is the read side of the Ledger.
type AvailabilityReader interface {
	CheckAvailable(ctx context.Context, variantID int64, qty int) (Availability, error)
}

// CartReader supplies the caller's cart when a stock check arrives without
// an explicit item list (cart collaborator, external).
type CartReader interface {
	CartItems(ctx context.Context, userID int64) ([]StockCheckItem, error)
}

// Checker is the stateless pre-flight stock check. It reserves nothing;
// a positive answer is advisory and only Reserve is authoritative.
type Checker struct {
	Reader AvailabilityReader
	Cart   CartReader
}

// CheckBatch checks every item and reports the shortfalls. Duplicate
// variant IDs are summed before checking, the same way the reserve path
// treats them. The per-variant reads are independent, so they run
// concurrently; shortfalls keep ascending variant order regardless.
func (c *Checker) CheckBatch(ctx context.Context, items []StockCheckItem) (StockCheckResult, error) {
	merged := MergeQuantities(toQuantities(items))

	avails := make([]Availability, len(merged))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, it := range merged {
		g.Go(func() error {
			a, err := c.Reader.CheckAvailable(gctx, it.VariantID, it.Qty)
			if err != nil {
				return err
			}
			avails[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StockCheckResult{}, err
	}

	insufficient := make([]InsufficientItem, 0)
	for i, it := range merged {
		avail := avails[i]
		if avail.Sufficient(it.Qty) {
			continue
		}
		reported := avail.Available
		if !avail.Active {
			reported = 0
		}
		insufficient = append(insufficient, InsufficientItem{
			VariantID:         it.VariantID,
			AvailableQuantity: reported,
			RequestedQuantity: it.Qty,
			Message:           fmt.Sprintf("Insufficient stock for variant %d", it.VariantID),
		})
	}

	return StockCheckResult{
		Available:         len(insufficient) == 0,
		InsufficientItems: insufficient,
	}, nil
}

// CheckForUser derives the item list from the user's current cart. The
// result shape is identical to CheckBatch.
func (c *Checker) CheckForUser(ctx context.Context, userID int64) (StockCheckResult, error) {
	items, err := c.Cart.CartItems(ctx, userID)
	if err != nil {
		return StockCheckResult{}, err
	}
	return c.CheckBatch(ctx, items)
}

func toQuantities(items []StockCheckItem) []ItemQuantity {
	out := make([]ItemQuantity, 0, len(items))
	for _, it := range items {
		out = append(out, ItemQuantity{VariantID: it.VariantID, Qty: it.Quantity})
	}
	return out
}
