// Package httpd exposes the paywall over HTTP for deployments that front
// the engine with a reverse proxy. Authentication happens upstream; the
// proxy asserts the identity in a trusted header and this server only
// decides and settles.
package httpd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcbria/omp"
	"github.com/marcbria/omp/access"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/id"
)

// IdentityHeader carries the authenticated identity asserted by the
// upstream proxy. An absent header means an anonymous request.
const IdentityHeader = "X-Identity"

// Server wires the paywall engine into an echo router.
type Server struct {
	paywall  *omp.Paywall
	catalog  catalog.Catalog
	loginURL string
	logger   *slog.Logger
	metrics  prometheus.Gatherer
	echo     *echo.Echo
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes the given prometheus gatherer on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.metrics = g }
}

// New creates a Server. loginURL is where anonymous buyers are sent; the
// requested asset path is appended as the source query parameter so the
// flow can resume after login.
func New(pw *omp.Paywall, cat catalog.Catalog, loginURL string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		paywall:  pw,
		catalog:  cat,
		loginURL: loginURL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}
	e.GET("/works/:work/catalog", s.handleCatalog)
	e.GET("/works/:work/formats/:format/files/:file/:revision", s.handleDownload)
	e.GET("/intents/:id", s.handleGetIntent)
	e.POST("/intents/:id/abandon", s.handleAbandon)
	e.POST("/payments/callback", s.handleCallback)

	s.echo = e
	return s
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start begins serving on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// handleDownload runs the access decision for one asset and renders the
// verdict. A grant is the caller's cue to serve the bytes; byte delivery
// itself lives with the host application.
func (s *Server) handleDownload(c echo.Context) error {
	ref, err := refFromPath(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	identityID := c.Request().Header.Get(IdentityHeader)

	verdict, err := s.paywall.Decide(c.Request().Context(), identityID, ref)
	if err != nil {
		return s.renderError(c, err)
	}

	switch verdict.Decision {
	case access.Grant:
		return c.JSON(http.StatusOK, echo.Map{"decision": verdict.Decision})

	case access.RequireAuthentication:
		login, err := url.Parse(s.loginURL)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login url misconfigured"})
		}
		q := login.Query()
		q.Set("source", verdict.Continue.String())
		login.RawQuery = q.Encode()
		return c.Redirect(http.StatusFound, login.String())

	case access.RequirePayment:
		redirect, err := s.paywall.Begin(c.Request().Context(), verdict.Intent)
		if err != nil {
			return s.renderError(c, err)
		}
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"decision": verdict.Decision,
			"intent":   verdict.Intent,
			"checkout": redirect.URL,
		})
	}

	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unknown decision"})
}

// handleCatalog lists the sellable assets of a work grouped by publication
// format, the shape the catalog page renders from.
func (s *Server) handleCatalog(c echo.Context) error {
	assets, err := s.catalog.ListByWork(c.Request().Context(), c.Param("work"))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"formats": catalog.GroupByFormat(assets)})
}

func (s *Server) handleGetIntent(c echo.Context) error {
	intentID, err := id.ParseIntentID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid intent id"})
	}

	intent, err := s.paywall.Intent(c.Request().Context(), intentID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, intent)
}

func (s *Server) handleAbandon(c echo.Context) error {
	intentID, err := id.ParseIntentID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid intent id"})
	}

	if err := s.paywall.Abandon(c.Request().Context(), intentID); err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "abandoned"})
}

// SignatureHeader carries the provider's HMAC over the callback body.
const SignatureHeader = "X-Signature"

func (s *Server) handleCallback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	signature := c.Request().Header.Get(SignatureHeader)

	if err := s.paywall.HandleCallback(c.Request().Context(), body, signature); err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// renderError maps engine errors onto HTTP statuses.
func (s *Server) renderError(c echo.Context, err error) error {
	switch {
	case omp.IsInvalidAsset(err):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, omp.ErrUnknownIntent):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case omp.IsGatewayError(err):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, omp.ErrIntentAbandoned):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, omp.ErrPaymentsNotConfigured):
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": err.Error()})
	case omp.IsRetryable(err):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func refFromPath(c echo.Context) (catalog.AssetRef, error) {
	var ref catalog.AssetRef

	workID, err := id.ParseWorkID(c.Param("work"))
	if err != nil {
		return ref, errors.New("invalid work id")
	}
	formatID, err := id.ParseFormatID(c.Param("format"))
	if err != nil {
		return ref, errors.New("invalid format id")
	}
	fileID, err := id.ParseFileID(c.Param("file"))
	if err != nil {
		return ref, errors.New("invalid file id")
	}
	revision, err := strconv.Atoi(c.Param("revision"))
	if err != nil || revision < 1 {
		return ref, errors.New("invalid revision")
	}

	ref.WorkID = workID
	ref.FormatID = formatID
	ref.FileID = fileID
	ref.Revision = revision
	return ref, nil
}
