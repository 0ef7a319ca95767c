package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eskills/edx-store/core/cart"
	"github.com/eskills/edx-store/core/enrollment"
	"github.com/eskills/edx-store/core/user"
	"github.com/eskills/edx-store/database"
	"github.com/eskills/edx-store/edx"
	"github.com/eskills/edx-store/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var ErrEmptyCart = errors.New("no items to checkout")

type Status string

const (
	Pending Status = "pending"
	Success Status = "success"
)

// Order binds a provider-side payment to the lines it was created for. The
// Stripe flow carries its binding in intent metadata; the PayPal flow needs
// these rows to find the purchase again at capture time.
type Order struct {
	ID         string    `json:"id" db:"order_id"`
	UserID     string    `json:"userId" db:"user_id"`
	ProviderID string    `json:"providerId" db:"provider_id"`
	Status     Status    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

type Item struct {
	OrderID   string    `json:"orderId" db:"order_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	Mode      string    `json:"mode" db:"mode"`
	Price     *float64  `json:"price" db:"price"`
	Currency  string    `json:"currency" db:"currency"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func CreateOrder(ctx context.Context, db sqlx.ExtContext, ord Order) error {
	const q = `
	INSERT INTO orders (order_id, user_id, provider_id, status, created_at, updated_at)
	VALUES (:order_id, :user_id, :provider_id, :status, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, ord); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	return nil
}

func CreateOrderItem(ctx context.Context, db sqlx.ExtContext, it Item) error {
	const q = `
	INSERT INTO order_items (order_id, course_id, mode, price, currency, created_at)
	VALUES (:order_id, :course_id, :mode, :price, :currency, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, it); err != nil {
		return fmt.Errorf("inserting order item: %w", err)
	}

	return nil
}

func FetchByProviderID(ctx context.Context, db sqlx.ExtContext, providerID string) (Order, error) {
	const q = `SELECT * FROM orders WHERE provider_id = $1`

	var ord Order
	if err := sqlx.GetContext(ctx, db, &ord, q, providerID); err != nil {
		return Order{}, fmt.Errorf("selecting order bound to payment[%s]: %w", providerID, err)
	}

	return ord, nil
}

func FetchOrderItems(ctx context.Context, db sqlx.ExtContext, orderID string) ([]Item, error) {
	const q = `SELECT * FROM order_items WHERE order_id = $1 ORDER BY created_at`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, orderID); err != nil {
		return nil, fmt.Errorf("selecting items of order[%s]: %w", orderID, err)
	}

	return items, nil
}

func UpdateStatus(ctx context.Context, db sqlx.ExtContext, orderID string, status Status) error {
	const q = `UPDATE orders SET status = $2, updated_at = $3 WHERE order_id = $1`

	if _, err := db.ExecContext(ctx, q, orderID, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("updating status of order[%s]: %w", orderID, err)
	}

	return nil
}

// prepare snapshots the cart lines into an order bound to the provider
// payment, all in one transaction.
func prepare(ctx context.Context, db *sqlx.DB, userID, providerID string, items []cart.Item) error {
	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		now := time.Now().UTC()
		ord := Order{
			ID:         validate.GenerateID(),
			UserID:     userID,
			ProviderID: providerID,
			Status:     Pending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := CreateOrder(ctx, tx, ord); err != nil {
			return err
		}

		for _, it := range items {
			oi := Item{
				OrderID:   ord.ID,
				CourseID:  it.CourseID,
				Mode:      it.Mode,
				Price:     it.Price,
				Currency:  it.Currency,
				CreatedAt: now,
			}
			if err := CreateOrderItem(ctx, tx, oi); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("creating the order bound to payment[%s] for user[%s]: %w", providerID, userID, err)
	}
	return nil
}

// line is one (course, mode) pair to enroll during settlement.
type line struct {
	courseID string
	mode     string
}

// settle converts a confirmed payment into enrollment calls and clears the
// cart. Each line is pushed independently: a failed enrollment is logged and
// recorded nowhere, but never aborts the remaining lines, and the cart is
// cleared regardless of individual outcomes so the processor's ack contract
// holds. Successful lines insert idempotent enrollment records, which is
// what makes a re-delivered webhook safe.
func settle(ctx context.Context, db *sqlx.DB, client *edx.Client, log logrus.FieldLogger, usr user.User, cartID string, lines []line) error {
	lmsUser := usr.Username
	if usr.EdxUsername.Valid && usr.EdxUsername.String != "" {
		lmsUser = usr.EdxUsername.String
	}

	for _, ln := range lines {
		if _, err := client.Enroll(ctx, lmsUser, ln.courseID, ln.mode); err != nil {
			log.WithFields(logrus.Fields{
				"user_id":   usr.ID,
				"course_id": ln.courseID,
				"message":   err,
			}).Error("enrollment failed during settlement")
			continue
		}

		if err := enrollment.Record(ctx, db, usr.ID, ln.courseID, ln.mode); err != nil {
			log.WithField("message", err).Warnf("recording enrollment of user %s in course %s", usr.ID, ln.courseID)
		}
	}

	if err := cart.Clear(ctx, db, cartID); err != nil {
		return fmt.Errorf("flushing cart[%s] after settlement: %w", cartID, err)
	}

	return nil
}
