package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/appointment"
	"github.com/hms/hms/internal/domain/doctor"
	"github.com/hms/hms/internal/domain/medicalrecord"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/lookup"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/telemetry"
)

// ServiceOptions configures one internal service process.
type ServiceOptions struct {
	Name     string
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Metrics  *telemetry.Metrics
	Asserter *auth.Asserter

	RequestTimeout time.Duration
	BodyLimit      string

	// Lookup targets for the services that consult the patient and doctor
	// services. Only the appointment and medical record services use them.
	PatientServiceURL string
	DoctorServiceURL  string
	LookupTimeout     time.Duration
	HTTPClient        *http.Client

	// Notifier receives appointment events. Defaults to a LogNotifier.
	Notifier appointment.Notifier
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// NewService builds the echo server of the named internal service.
func NewService(opts ServiceOptions) (*echo.Echo, error) {
	if opts.Pool == nil {
		return nil, fmt.Errorf("service %s: database pool is required", opts.Name)
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetrics(opts.Name)
	}

	handler, err := buildHandler(opts)
	if err != nil {
		return nil, err
	}

	e := newServiceEcho(opts)
	e.GET("/health/db", db.HealthHandler(opts.Pool))
	handler.RegisterRoutes(e.Group("/api"))
	return e, nil
}

// newServiceEcho returns an echo instance with the middleware chain and
// health endpoints shared by every internal service.
func newServiceEcho(opts ServiceOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	bodyLimit := opts.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "2M"
	}

	e.Use(middleware.Recovery(opts.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(opts.Logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit(bodyLimit))
	if opts.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(opts.RequestTimeout))
	}
	e.Use(opts.Metrics.Middleware())
	e.Use(auth.IdentityMiddleware(opts.Asserter))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": opts.Name,
		})
	})
	e.GET("/metrics", opts.Metrics.Handler())
	return e
}

func buildHandler(opts ServiceOptions) (routeRegistrar, error) {
	switch opts.Name {
	case ServicePatient:
		guard := auth.NewGuard(auth.PatientPolicy(nil)).OnDecision(opts.Metrics.ObserveOwnership).WithLogger(opts.Logger)
		return patient.NewHandler(patient.NewService(patient.NewRepoPG(opts.Pool), guard)), nil

	case ServiceDoctor:
		guard := auth.NewGuard(auth.DoctorPolicy(nil)).OnDecision(opts.Metrics.ObserveOwnership).WithLogger(opts.Logger)
		return doctor.NewHandler(doctor.NewService(doctor.NewRepoPG(opts.Pool), guard)), nil

	case ServiceAppointment:
		patients, doctors, err := newLookups(opts)
		if err != nil {
			return nil, err
		}
		guard := auth.NewGuard(auth.AppointmentPolicy(patients, doctors)).OnDecision(opts.Metrics.ObserveOwnership).WithLogger(opts.Logger)
		notifier := opts.Notifier
		if notifier == nil {
			notifier = appointment.NewLogNotifier(opts.Logger)
		}
		svc := appointment.NewService(appointment.NewRepoPG(opts.Pool), guard, patients, doctors, notifier, opts.Logger)
		return appointment.NewHandler(svc), nil

	case ServiceMedicalRecord:
		patients, doctors, err := newLookups(opts)
		if err != nil {
			return nil, err
		}
		guard := auth.NewGuard(
			auth.MedicalRecordPolicy(patients, doctors),
			auth.PatientHistoryPolicy(patients),
		).OnDecision(opts.Metrics.ObserveOwnership).WithLogger(opts.Logger)
		svc := medicalrecord.NewService(medicalrecord.NewRepoPG(opts.Pool), guard, patients, doctors)
		return medicalrecord.NewHandler(svc), nil
	}
	return nil, fmt.Errorf("unknown service %q (want one of %v)", opts.Name, Services)
}

func newLookups(opts ServiceOptions) (*lookup.Client, *lookup.Client, error) {
	patients, err := lookup.NewClient(lookup.Config{
		BaseURL:    opts.PatientServiceURL,
		Resource:   "patients",
		Kind:       auth.KindPatient,
		Timeout:    opts.LookupTimeout,
		Asserter:   opts.Asserter,
		HTTPClient: opts.HTTPClient,
		Observe:    opts.Metrics.ObserveLookup,
	})
	if err != nil {
		return nil, nil, err
	}
	doctors, err := lookup.NewClient(lookup.Config{
		BaseURL:    opts.DoctorServiceURL,
		Resource:   "doctors",
		Kind:       auth.KindDoctor,
		Timeout:    opts.LookupTimeout,
		Asserter:   opts.Asserter,
		HTTPClient: opts.HTTPClient,
		Observe:    opts.Metrics.ObserveLookup,
	})
	if err != nil {
		return nil, nil, err
	}
	return patients, doctors, nil
}
