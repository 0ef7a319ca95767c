package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eskills/edx-store/validate"
	"github.com/jmoiron/sqlx"
)

type Cart struct {
	ID        string    `json:"id" db:"cart_id"`
	UserID    string    `json:"-" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
	Items     []Item    `json:"items" db:"-"`
}

type Item struct {
	CartID    string    `json:"-" db:"cart_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	Mode      string    `json:"mode" db:"mode"`
	Price     *float64  `json:"price" db:"price"`
	Currency  string    `json:"currency" db:"currency"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type ItemNew struct {
	CourseID string `json:"courseId" validate:"required"`
}

// Total sums the line prices, counting an absent price as zero. Free lines
// never fail a checkout computation.
func Total(items []Item) float64 {
	var tot float64
	for _, it := range items {
		if it.Price != nil {
			tot += *it.Price
		}
	}
	return tot
}

// FetchByUser returns the user's cart, creating an empty one on first
// access. Carts are cleared, never deleted.
func FetchByUser(ctx context.Context, db sqlx.ExtContext, userID string) (Cart, error) {
	const q = `SELECT cart_id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`

	var crt Cart
	err := sqlx.GetContext(ctx, db, &crt, q, userID)
	if err == nil {
		return crt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Cart{}, fmt.Errorf("selecting cart of user[%s]: %w", userID, err)
	}

	now := time.Now().UTC()
	crt = Cart{
		ID:        validate.GenerateID(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const ins = `
	INSERT INTO carts (cart_id, user_id, created_at, updated_at)
	VALUES (:cart_id, :user_id, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, ins, crt); err != nil {
		return Cart{}, fmt.Errorf("creating cart for user[%s]: %w", userID, err)
	}

	return crt, nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, cartID string) (Cart, error) {
	const q = `SELECT cart_id, user_id, created_at, updated_at FROM carts WHERE cart_id = $1`

	var crt Cart
	if err := sqlx.GetContext(ctx, db, &crt, q, cartID); err != nil {
		return Cart{}, fmt.Errorf("selecting cart[%s]: %w", cartID, err)
	}

	return crt, nil
}

func FetchItems(ctx context.Context, db sqlx.ExtContext, cartID string) ([]Item, error) {
	const q = `SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY created_at`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, cartID); err != nil {
		return nil, fmt.Errorf("selecting items of cart[%s]: %w", cartID, err)
	}

	return items, nil
}

// AddItem inserts a line unless one already exists for the course. The
// at-most-one-line-per-course invariant is enforced here by the pre-check,
// not left to the storage constraint; repeated identical calls are no-ops
// returning false.
func AddItem(ctx context.Context, db sqlx.ExtContext, it Item) (bool, error) {
	const exists = `SELECT COUNT(*) FROM cart_items WHERE cart_id = $1 AND course_id = $2`

	var n int
	if err := sqlx.GetContext(ctx, db, &n, exists, it.CartID, it.CourseID); err != nil {
		return false, fmt.Errorf("checking cart[%s] for course[%s]: %w", it.CartID, it.CourseID, err)
	}
	if n > 0 {
		return false, nil
	}

	const ins = `
	INSERT INTO cart_items (cart_id, course_id, mode, price, currency, created_at)
	VALUES (:cart_id, :course_id, :mode, :price, :currency, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, ins, it); err != nil {
		return false, fmt.Errorf("inserting item into cart[%s]: %w", it.CartID, err)
	}

	if err := touch(ctx, db, it.CartID); err != nil {
		return false, err
	}

	return true, nil
}

// DeleteItem removes the line for the course, reporting whether one existed.
func DeleteItem(ctx context.Context, db sqlx.ExtContext, cartID, courseID string) (bool, error) {
	const q = `DELETE FROM cart_items WHERE cart_id = $1 AND course_id = $2`

	res, err := db.ExecContext(ctx, q, cartID, courseID)
	if err != nil {
		return false, fmt.Errorf("deleting course[%s] from cart[%s]: %w", courseID, cartID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking deletion outcome: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	return true, touch(ctx, db, cartID)
}

// Clear drops every line unconditionally. Both explicit user action and
// settlement end here.
func Clear(ctx context.Context, db sqlx.ExtContext, cartID string) error {
	const q = `DELETE FROM cart_items WHERE cart_id = $1`

	if _, err := db.ExecContext(ctx, q, cartID); err != nil {
		return fmt.Errorf("clearing cart[%s]: %w", cartID, err)
	}

	return touch(ctx, db, cartID)
}

func touch(ctx context.Context, db sqlx.ExtContext, cartID string) error {
	const q = `UPDATE carts SET updated_at = $2 WHERE cart_id = $1`

	if _, err := db.ExecContext(ctx, q, cartID, time.Now().UTC()); err != nil {
		return fmt.Errorf("updating cart[%s]: %w", cartID, err)
	}

	return nil
}
