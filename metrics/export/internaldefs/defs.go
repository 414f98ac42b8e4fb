package internaldefs

import (
	"github.com/MrEthical07/rolecalc"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   rolecalc.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   rolecalc.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: rolecalc.MetricSignInSuccess, Name: "rolecalc_sign_in_success_total", Help: "Sign-ins that produced a token without a challenge."},
	{ID: rolecalc.MetricSignInFailure, Name: "rolecalc_sign_in_failure_total", Help: "Sign-ins rejected by the identity provider."},
	{ID: rolecalc.MetricChallengeIssued, Name: "rolecalc_challenge_issued_total", Help: "MFA and phone OTP challenges issued."},
	{ID: rolecalc.MetricChallengeSuccess, Name: "rolecalc_challenge_success_total", Help: "Challenge answers that produced a token."},
	{ID: rolecalc.MetricChallengeFailure, Name: "rolecalc_challenge_failure_total", Help: "Rejected challenge answers."},
	{ID: rolecalc.MetricRegistrationSuccess, Name: "rolecalc_registration_success_total", Help: "Accepted registrations."},
	{ID: rolecalc.MetricRegistrationFailure, Name: "rolecalc_registration_failure_total", Help: "Rejected registrations."},
	{ID: rolecalc.MetricConfirmationSuccess, Name: "rolecalc_confirmation_success_total", Help: "Confirmed registrations."},
	{ID: rolecalc.MetricConfirmationFailure, Name: "rolecalc_confirmation_failure_total", Help: "Rejected confirmation codes."},
	{ID: rolecalc.MetricPhoneOTPRequested, Name: "rolecalc_phone_otp_requested_total", Help: "Phone OTP requests."},
	{ID: rolecalc.MetricFlowSuperseded, Name: "rolecalc_flow_superseded_total", Help: "Late provider responses discarded after a newer flow started."},
	{ID: rolecalc.MetricPermissionDeniedLocal, Name: "rolecalc_permission_denied_local_total", Help: "Operations refused by the local policy."},
	{ID: rolecalc.MetricPermissionDeniedRemote, Name: "rolecalc_permission_denied_remote_total", Help: "Operations refused by the service with 403."},
	{ID: rolecalc.MetricCalculationSuccess, Name: "rolecalc_calculation_success_total", Help: "Calculations answered by the service."},
	{ID: rolecalc.MetricCalculationFailure, Name: "rolecalc_calculation_failure_total", Help: "Calculations the service rejected."},
	{ID: rolecalc.MetricCalculationOffline, Name: "rolecalc_calculation_offline_total", Help: "Calculations computed locally while the service was unreachable."},
	{ID: rolecalc.MetricNetworkFailure, Name: "rolecalc_network_failure_total", Help: "Transport failures reaching a remote service."},
	{ID: rolecalc.MetricSessionRestored, Name: "rolecalc_session_restored_total", Help: "Principals restored from the session store."},
	{ID: rolecalc.MetricSessionCleared, Name: "rolecalc_session_cleared_total", Help: "Sessions cleared after the service rejected the token."},
	{ID: rolecalc.MetricLogout, Name: "rolecalc_logout_total", Help: "Explicit logouts."},
	{ID: rolecalc.MetricRoleCatalogRefresh, Name: "rolecalc_role_catalog_refresh_total", Help: "Successful role catalog loads."},
	{ID: rolecalc.MetricRoleCatalogRefreshFailure, Name: "rolecalc_role_catalog_refresh_failure_total", Help: "Failed role catalog loads."},
	{ID: rolecalc.MetricAdminAction, Name: "rolecalc_admin_action_total", Help: "Admin calls accepted by the service."},
	{ID: rolecalc.MetricAdminActionFailure, Name: "rolecalc_admin_action_failure_total", Help: "Admin calls that failed."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: rolecalc.MetricCalculateLatency, Name: "rolecalc_calculate_latency_seconds", Help: "Calculate round-trip latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed bucket array; missing buckets are zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
