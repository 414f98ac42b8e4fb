package rolecalc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/rolecalc/api"
)

// Calculate submits a calculation for the live principal.
//
// The local policy is checked first: a forbidden operation returns a
// *PermissionDenied without any network call. The service re-checks and may
// still refuse with 403, which also returns *PermissionDenied (Remote set)
// and applies any role list the service included. A 401 clears the session
// and returns ErrSessionExpired. Neither denial clears the session.
//
// When the service cannot be reached and Calculation.OfflineFallback is set,
// the result is computed locally and marked Offline.
func (e *Engine) Calculate(ctx context.Context, operand1, operand2 float64, op Operation) (*CalculationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, string(op))
	}
	sc := e.load()
	if sc == nil {
		return nil, ErrNotAuthenticated
	}

	if !sc.policy.CanPerform(op) {
		e.metricInc(MetricPermissionDeniedLocal)
		e.emitAudit(ctx, auditEventPermissionDenied, false, sc.principal.Identity, ErrPermissionDenied, func() map[string]string {
			return map[string]string{"operation": string(op), "source": "local"}
		})
		return nil, &PermissionDenied{Operation: op}
	}

	start := e.now()
	resp, err := e.service.Calculate(ctx, sc.principal.Token, api.CalculateRequest{
		Operand1:  operand1,
		Operand2:  operand2,
		Operation: op,
	})
	e.metricObserve(MetricCalculateLatency, e.now().Sub(start))
	if err != nil {
		err = e.serviceError(ctx, sc, op, err)
		if errors.Is(err, ErrNetwork) && e.config.Calculation.OfflineFallback {
			return e.calculateOffline(ctx, sc, operand1, operand2, op)
		}
		if !errors.Is(err, ErrPermissionDenied) {
			e.metricInc(MetricCalculationFailure)
			e.emitAudit(ctx, auditEventCalculation, false, sc.principal.Identity, err, func() map[string]string {
				return map[string]string{"operation": string(op)}
			})
		}
		return nil, err
	}

	if len(resp.UserRoles) > 0 {
		e.applyServerRoles(ctx, sc, resp.UserRoles)
	}

	e.metricInc(MetricCalculationSuccess)
	e.emitAudit(ctx, auditEventCalculation, true, sc.principal.Identity, nil, func() map[string]string {
		return map[string]string{"operation": string(op)}
	})
	return &CalculationResult{
		Operand1:  operand1,
		Operand2:  operand2,
		Operation: op,
		Result:    resp.Result.Float64(),
		History:   resp.History,
	}, nil
}

// calculateOffline runs after the local policy check already passed.
func (e *Engine) calculateOffline(ctx context.Context, sc *sessionContext, operand1, operand2 float64, op Operation) (*CalculationResult, error) {
	result, err := Compute(operand1, operand2, op)
	e.metricInc(MetricCalculationOffline)
	e.emitAudit(ctx, auditEventCalculation, err == nil, sc.principal.Identity, err, func() map[string]string {
		return map[string]string{"operation": string(op), "offline": "true"}
	})
	e.logger.Warn("calculation service unreachable; computed locally", "identity", sc.principal.Identity, "operation", string(op))
	if err != nil {
		return nil, err
	}
	return &CalculationResult{
		Operand1:  operand1,
		Operand2:  operand2,
		Operation: op,
		Result:    result,
		Offline:   true,
	}, nil
}

// Compute evaluates operand1 op operand2. Division by zero returns
// ErrDivisionByZero.
func Compute(operand1, operand2 float64, op Operation) (float64, error) {
	switch op {
	case OpAdd:
		return operand1 + operand2, nil
	case OpSubtract:
		return operand1 - operand2, nil
	case OpMultiply:
		return operand1 * operand2, nil
	case OpDivide:
		if operand2 == 0 {
			return 0, ErrDivisionByZero
		}
		return operand1 / operand2, nil
	default:
		return 0, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, string(op))
	}
}

// FormatExpression renders "a op b = r" with the operation's display symbol.
func FormatExpression(operand1, operand2 float64, op Operation, result float64) string {
	return formatNumber(operand1) + " " + op.Symbol() + " " + formatNumber(operand2) + " = " + formatNumber(result)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', 12, 64)
}
