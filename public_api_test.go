package rolecalc_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/MrEthical07/rolecalc"
	"github.com/MrEthical07/rolecalc/middleware"
)

// Guards the public API signatures consumers compile against.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = rolecalc.New

	var _ *rolecalc.Engine
	var _ *rolecalc.AdminSurface
	var _ rolecalc.Config
	var _ rolecalc.FlowState
	var _ rolecalc.Principal
	var _ rolecalc.CalculationResult
	var _ rolecalc.AdminOverview
	var _ rolecalc.SessionStore
	var _ rolecalc.AuditSink
	var _ rolecalc.HTTPDoer = http.DefaultClient

	var _ error = rolecalc.ErrPermissionDenied
	var _ error = rolecalc.ErrNotAuthenticated
	var _ error = rolecalc.ErrSessionExpired
	var _ error = rolecalc.ErrFlowSuperseded
	var _ error = rolecalc.ErrAdminStale
	var _ error = rolecalc.ErrNetwork
	var _ error = &rolecalc.PermissionDenied{}

	var _ func(middleware.Verifier) func(http.Handler) http.Handler = middleware.Guard
	var _ func(string, string) func(http.Handler) http.Handler = middleware.RequireGroup

	var _ func(*rolecalc.Engine, context.Context, string, string) (rolecalc.FlowState, error) = (*rolecalc.Engine).SignIn
	var _ func(*rolecalc.Engine, context.Context, string) (rolecalc.FlowState, error) = (*rolecalc.Engine).RespondToChallenge
	var _ func(*rolecalc.Engine, context.Context, float64, float64, rolecalc.Operation) (*rolecalc.CalculationResult, error) = (*rolecalc.Engine).Calculate
	var _ func(*rolecalc.Engine, context.Context) (rolecalc.Principal, bool, error) = (*rolecalc.Engine).Restore
	var _ func(*rolecalc.Engine, context.Context) error = (*rolecalc.Engine).Logout
	var _ func(*rolecalc.Engine) (*rolecalc.AdminSurface, error) = (*rolecalc.Engine).Admin
}
