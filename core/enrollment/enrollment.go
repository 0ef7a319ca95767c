package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Enrollment is the local record of a successful enrollment push, kept so
// owned courses render without consulting the LMS and so settlements are
// idempotent to re-drive.
type Enrollment struct {
	UserID    string    `json:"userId" db:"user_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	Mode      string    `json:"mode" db:"mode"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Record stores an enrollment, updating mode and timestamp when the pair
// already exists so repeated settlements stay safe.
func Record(ctx context.Context, db sqlx.ExtContext, userID, courseID, mode string) error {
	now := time.Now().UTC()
	e := Enrollment{
		UserID:    userID,
		CourseID:  courseID,
		Mode:      mode,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}

	const q = `
	INSERT INTO enrollments (user_id, course_id, mode, status, created_at, updated_at)
	VALUES (:user_id, :course_id, :mode, :status, :created_at, :updated_at)
	ON CONFLICT (user_id, course_id) DO UPDATE SET
	 mode = EXCLUDED.mode,
	 status = EXCLUDED.status,
	 updated_at = EXCLUDED.updated_at`

	if _, err := sqlx.NamedExecContext(ctx, db, q, e); err != nil {
		return fmt.Errorf("inserting enrollment: %w", err)
	}

	return nil
}

func FetchByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]Enrollment, error) {
	const q = `SELECT * FROM enrollments WHERE user_id = $1 ORDER BY created_at`

	enrollments := []Enrollment{}
	if err := sqlx.SelectContext(ctx, db, &enrollments, q, userID); err != nil {
		return nil, fmt.Errorf("selecting enrollments of user[%s]: %w", userID, err)
	}

	return enrollments, nil
}
