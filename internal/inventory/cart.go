package inventory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGCartReader reads the cart collaborator's rows for the cart-derived
// stock-check mode. Compatibility only; the canonical path sends items.
type PGCartReader struct {
	DB *pgxpool.Pool
}

func (r *PGCartReader) CartItems(ctx context.Context, userID int64) ([]StockCheckItem, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT variant_id, quantity FROM cart_items WHERE user_id=$1 ORDER BY variant_id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockCheckItem
	for rows.Next() {
		var it StockCheckItem
		if err := rows.Scan(&it.VariantID, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
