package config

import "time"

type Config struct {
	Web    Web
	Cors   Cors
	DB     DB
	Auth   Auth
	Rate   Rate
	Stripe Stripe
	Paypal Paypal
	Edx    Edx
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type Cors struct {
	Origin string
}

type DB struct {
	User       string `conf:"default:postgres"`
	Password   string `conf:"default:postgres,mask"`
	Host       string `conf:"default:localhost:5432"`
	Name       string `conf:"default:edxstore"`
	DisableTLS bool   `conf:"default:true"`
}

type Auth struct {
	SessionLifetime time.Duration `conf:"default:168h"`
}

type Rate struct {
	Burst    int     `conf:"default:20"`
	Expiry   int     `conf:"default:100"`
	LimitRPS float64 `conf:"default:10"`
}

type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	Currency      string `conf:"default:usd"`
}

type Paypal struct {
	ClientID string
	Secret   string `conf:"mask"`
	URL      string `conf:"default:https://api.sandbox.paypal.com"`
}

// Edx configures the client used to talk to the remote LMS. The detail and
// probe path lists are ordered fallback variants: the exact path shape served
// by a given deployment is not contractually guaranteed, so the client tries
// each spelling until one answers.
type Edx struct {
	URL                string        `conf:"default:http://localhost:18000"`
	ClientID           string        `conf:"mask"`
	ClientSecret       string        `conf:"mask"`
	Timeout            time.Duration `conf:"default:10s"`
	InsecureSkipVerify bool          `conf:"default:false"`
	CourseDetailPaths  []string      `conf:"default:api/courses/v1/courses/%s;api/mobile/v0.5/course_info/%s"`
	CatalogProbePaths  []string      `conf:"default:api/courses/v1/courses/;api/courses/v1/courses;api/course/v1/courses/;api/course/v1/courses;api/courses/courses/;courses/v1/courses/;api/v1/courses/;api/v1/courses"`
}
