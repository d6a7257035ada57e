package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// GateState is a state of the edge gatekeeper for one request.
type GateState string

const (
	StateReceived       GateState = "RECEIVED"
	StateClassified     GateState = "CLASSIFIED"
	StatePassedThrough  GateState = "PASSED-THROUGH"
	StateAuthenticating GateState = "AUTHENTICATING"
	StateAuthenticated  GateState = "AUTHENTICATED"
	StateRoleChecked    GateState = "ROLE-CHECKED"
	StateForwarded      GateState = "FORWARDED"
	StateRejected       GateState = "REJECTED"
)

// Verifier turns an Authorization header value into a principal. *Codec is
// the production implementation.
type Verifier interface {
	Verify(credential string) (Principal, error)
}

// GateResult is the terminal outcome of Evaluate. For rejections, RejectedIn
// names the state that failed: CLASSIFIED (no credential), AUTHENTICATING
// (credential failed verification) or AUTHENTICATED (role check denied).
type GateResult struct {
	State      GateState
	RejectedIn GateState
	Principal  Principal
	Err        error
}

// GatekeeperConfig wires the gatekeeper's collaborators.
type GatekeeperConfig struct {
	Classifier *RouteClassifier
	Verifier   Verifier
	Policy     *PolicyEngine
	Asserter   *Asserter
	Logger     zerolog.Logger
	// OnDecision, when set, observes every terminal result.
	OnDecision func(GateResult)
}

// Gatekeeper runs classification, verification and the role check for every
// inbound edge request.
type Gatekeeper struct {
	classifier *RouteClassifier
	verifier   Verifier
	policy     *PolicyEngine
	asserter   *Asserter
	logger     zerolog.Logger
	onDecision func(GateResult)
}

func NewGatekeeper(cfg GatekeeperConfig) *Gatekeeper {
	return &Gatekeeper{
		classifier: cfg.Classifier,
		verifier:   cfg.Verifier,
		policy:     cfg.Policy,
		asserter:   cfg.Asserter,
		logger:     cfg.Logger,
		onDecision: cfg.OnDecision,
	}
}

// Evaluate decides the fate of r without modifying it.
func (g *Gatekeeper) Evaluate(r *http.Request) GateResult {
	path, method := r.URL.Path, r.Method

	// RECEIVED -> CLASSIFIED
	if !g.classifier.RequiresAuth(path, method) {
		return GateResult{State: StatePassedThrough}
	}

	header := r.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return GateResult{State: StateRejected, RejectedIn: StateClassified, Err: ErrMalformedCredential}
	}

	// AUTHENTICATING -> AUTHENTICATED
	p, err := g.verifier.Verify(header)
	if err != nil {
		return GateResult{State: StateRejected, RejectedIn: StateAuthenticating, Err: err}
	}

	// AUTHENTICATED -> ROLE-CHECKED
	d := g.policy.Authorize(path, method, p.Role)
	if !d.Allowed {
		return GateResult{
			State:      StateRejected,
			RejectedIn: StateAuthenticated,
			Principal:  p,
			Err:        &DeniedError{Gate: GateCoarse, Reason: d.Reason},
		}
	}

	return GateResult{State: StateForwarded, Principal: p}
}

// Middleware enforces Evaluate on the echo request pipeline. Client-supplied
// identity headers are always removed; only a FORWARDED request gets them
// back, filled from the verified principal.
func (g *Gatekeeper) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			StripIdentity(req.Header)

			res := g.Evaluate(req)
			if g.onDecision != nil {
				g.onDecision(res)
			}

			switch res.State {
			case StatePassedThrough:
				return next(c)
			case StateRejected:
				g.logger.Debug().
					Str("path", req.URL.Path).
					Str("method", req.Method).
					Str("rejected_in", string(res.RejectedIn)).
					Err(res.Err).
					Msg("edge request rejected")
				return HTTPError(res.Err)
			}

			if err := ForwardIdentity(req.Header, res.Principal, g.asserter); err != nil {
				g.logger.Error().Err(err).Msg("signing identity assertion")
				return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), NewIdentity(res.Principal))))
			return next(c)
		}
	}
}
