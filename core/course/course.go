package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eskills/edx-store/edx"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("course not found")

// Course is the locally cached copy of a remote catalog record, written
// whenever details are fetched so carts and enrollment history can render
// without another round trip to the LMS.
type Course struct {
	ID               string     `json:"id" db:"course_id"`
	Name             string     `json:"name" db:"name"`
	Org              string     `json:"org" db:"org"`
	Number           string     `json:"number" db:"number"`
	ShortDescription string     `json:"shortDescription" db:"short_description"`
	Overview         string     `json:"overview" db:"overview"`
	StartDate        *time.Time `json:"startDate" db:"start_date"`
	EndDate          *time.Time `json:"endDate" db:"end_date"`
	EnrollmentStart  *time.Time `json:"enrollmentStart" db:"enrollment_start"`
	EnrollmentEnd    *time.Time `json:"enrollmentEnd" db:"enrollment_end"`
	Price            float64    `json:"price" db:"price"`
	Currency         string     `json:"currency" db:"currency"`
	Mode             string     `json:"mode" db:"mode"`
	MobileAvailable  bool       `json:"mobileAvailable" db:"mobile_available"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at"`
}

// FromRemote maps a merged remote summary onto the cached shape.
func FromRemote(rc edx.Course) Course {
	now := time.Now().UTC()
	mobile := true
	if rc.MobileAvailable != nil {
		mobile = *rc.MobileAvailable
	}

	return Course{
		ID:               rc.ID,
		Name:             rc.Name,
		Org:              rc.Org,
		Number:           rc.Number,
		ShortDescription: rc.ShortDescription,
		Overview:         rc.Overview,
		StartDate:        rc.Start,
		EndDate:          rc.End,
		EnrollmentStart:  rc.EnrollmentStart,
		EnrollmentEnd:    rc.EnrollmentEnd,
		Price:            rc.Price,
		Currency:         rc.Currency,
		Mode:             rc.Mode,
		MobileAvailable:  mobile,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func Upsert(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	INSERT INTO courses
	(course_id, name, org, number, short_description, overview, start_date, end_date,
	 enrollment_start, enrollment_end, price, currency, mode, mobile_available, created_at, updated_at)
	VALUES
	(:course_id, :name, :org, :number, :short_description, :overview, :start_date, :end_date,
	 :enrollment_start, :enrollment_end, :price, :currency, :mode, :mobile_available, :created_at, :updated_at)
	ON CONFLICT (course_id) DO UPDATE SET
	 name = EXCLUDED.name,
	 org = EXCLUDED.org,
	 number = EXCLUDED.number,
	 short_description = EXCLUDED.short_description,
	 overview = EXCLUDED.overview,
	 start_date = EXCLUDED.start_date,
	 end_date = EXCLUDED.end_date,
	 enrollment_start = EXCLUDED.enrollment_start,
	 enrollment_end = EXCLUDED.enrollment_end,
	 price = EXCLUDED.price,
	 currency = EXCLUDED.currency,
	 mode = EXCLUDED.mode,
	 mobile_available = EXCLUDED.mobile_available,
	 updated_at = EXCLUDED.updated_at`

	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("upserting course: %w", err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Course, error) {
	const q = `SELECT * FROM courses WHERE course_id = $1`

	var c Course
	if err := sqlx.GetContext(ctx, db, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, fmt.Errorf("selecting course[%s]: %w", id, err)
	}

	return c, nil
}

func FetchByIDs(ctx context.Context, db sqlx.ExtContext, ids []string) ([]Course, error) {
	if len(ids) == 0 {
		return []Course{}, nil
	}

	q, args, err := sqlx.In(`SELECT * FROM courses WHERE course_id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("building course query: %w", err)
	}
	q = sqlx.Rebind(sqlx.DOLLAR, q)

	courses := []Course{}
	if err := sqlx.SelectContext(ctx, db, &courses, q, args...); err != nil {
		return nil, fmt.Errorf("selecting courses: %w", err)
	}

	return courses, nil
}
