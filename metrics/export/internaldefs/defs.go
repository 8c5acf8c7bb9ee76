package internaldefs

import (
	goMFA "github.com/MrEthical07/goMFA"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goMFA.MetricSetupStarted, Name: "gomfa_setup_started_total", Help: "Methods provisioned by SetupMethod."},
	{ID: goMFA.MetricMethodEnabled, Name: "gomfa_method_enabled_total", Help: "Methods moved from provisioned to enabled."},
	{ID: goMFA.MetricMethodDisabled, Name: "gomfa_method_disabled_total", Help: "Methods moved to disabled."},
	{ID: goMFA.MetricVerifySuccess, Name: "gomfa_verify_success_total", Help: "Successful verifications of any method."},
	{ID: goMFA.MetricVerifyFailure, Name: "gomfa_verify_failure_total", Help: "Failed verifications of any method."},
	{ID: goMFA.MetricTOTPSuccess, Name: "gomfa_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: goMFA.MetricTOTPFailure, Name: "gomfa_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: goMFA.MetricTOTPReplay, Name: "gomfa_totp_replay_total", Help: "TOTP codes rejected as replays."},
	{ID: goMFA.MetricBackupCodeUsed, Name: "gomfa_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: goMFA.MetricBackupCodeFailed, Name: "gomfa_backup_code_failed_total", Help: "Failed backup code attempts."},
	{ID: goMFA.MetricBackupCodeReuse, Name: "gomfa_backup_code_reuse_total", Help: "Attempts with an already consumed backup code."},
	{ID: goMFA.MetricBackupCodeRegenerated, Name: "gomfa_backup_code_regenerated_total", Help: "Backup code set regenerations."},
	{ID: goMFA.MetricChannelCodeIssued, Name: "gomfa_channel_code_issued_total", Help: "Issued SMS and email codes."},
	{ID: goMFA.MetricChannelCodeSuccess, Name: "gomfa_channel_code_success_total", Help: "Successful SMS and email code verifications."},
	{ID: goMFA.MetricChannelCodeFailure, Name: "gomfa_channel_code_failure_total", Help: "Failed SMS and email code verifications."},
	{ID: goMFA.MetricChannelCodeExpired, Name: "gomfa_channel_code_expired_total", Help: "SMS and email codes submitted after expiry."},
	{ID: goMFA.MetricBiometricSuccess, Name: "gomfa_biometric_success_total", Help: "Successful biometric verifications."},
	{ID: goMFA.MetricBiometricFailure, Name: "gomfa_biometric_failure_total", Help: "Failed biometric verifications."},
	{ID: goMFA.MetricRateLimitHit, Name: "gomfa_rate_limit_hit_total", Help: "Attempts refused by a limiter."},
	{ID: goMFA.MetricPrecheckDenied, Name: "gomfa_precheck_denied_total", Help: "Attempts denied by a precheck."},
	{ID: goMFA.MetricInvalidSecret, Name: "gomfa_invalid_secret_total", Help: "Stored secrets that could not be opened."},
	{ID: goMFA.MetricConcurrencyConflict, Name: "gomfa_concurrency_conflict_total", Help: "Store compare-and-set conflicts after retry."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goMFA.MetricVerifyLatency, Name: "gomfa_verify_latency_seconds", Help: "Verification latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's eight latency buckets.
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

// HistogramBoundSuffix names each bucket where a label value is not allowed.
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

// NormalizeBuckets copies raw into a fixed eight bucket array; missing
// buckets are zero.
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
