// Package internaldefs holds the shared metric name table used by the
// Prometheus and OTel exporters, so both expose identical names.
package internaldefs

import "github.com/opennotebook/authkit/internal/metrics"

// CounterDef names one exported counter.
type CounterDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{metrics.MetricLoginSuccess, "authkit_login_success_total", "Successful logins."},
	{metrics.MetricLoginFailure, "authkit_login_failure_total", "Failed logins."},
	{metrics.MetricLoginRateLimited, "authkit_login_rate_limited_total", "Rate-limited login attempts."},
	{metrics.MetricRefreshSuccess, "authkit_refresh_success_total", "Successful refresh rotations."},
	{metrics.MetricRefreshFailure, "authkit_refresh_failure_total", "Failed refresh attempts."},
	{metrics.MetricRefreshReuseDetected, "authkit_refresh_reuse_detected_total", "Replayed refresh credentials detected."},
	{metrics.MetricRefreshRateLimited, "authkit_refresh_rate_limited_total", "Rate-limited refresh attempts."},
	{metrics.MetricLogout, "authkit_logout_total", "Logouts."},
	{metrics.MetricRegisterSuccess, "authkit_register_success_total", "Successful registrations."},
	{metrics.MetricRegisterConflict, "authkit_register_conflict_total", "Registrations rejected on duplicate email."},
	{metrics.MetricRegisterRateLimited, "authkit_register_rate_limited_total", "Rate-limited registration attempts."},
	{metrics.MetricEmailVerificationRequest, "authkit_email_verification_request_total", "Verification tokens requested."},
	{metrics.MetricEmailVerificationSuccess, "authkit_email_verification_success_total", "Emails verified."},
	{metrics.MetricEmailVerificationFailure, "authkit_email_verification_failure_total", "Failed verification redemptions."},
	{metrics.MetricPasswordResetRequest, "authkit_password_reset_request_total", "Reset tokens requested."},
	{metrics.MetricPasswordResetSuccess, "authkit_password_reset_success_total", "Password resets completed."},
	{metrics.MetricPasswordResetFailure, "authkit_password_reset_failure_total", "Failed reset redemptions."},
	{metrics.MetricPasswordChangeSuccess, "authkit_password_change_success_total", "Authenticated password changes."},
	{metrics.MetricPasswordChangeFailure, "authkit_password_change_failure_total", "Rejected password changes."},
	{metrics.MetricOAuthLoginSuccess, "authkit_oauth_login_success_total", "Completed federated logins."},
	{metrics.MetricOAuthLoginLinked, "authkit_oauth_login_linked_total", "Federated logins that merged into an existing account."},
	{metrics.MetricNotificationFailure, "authkit_notification_failure_total", "Absorbed notification delivery failures."},
	{metrics.MetricSessionCreated, "authkit_session_created_total", "Sessions created."},
	{metrics.MetricSessionRevoked, "authkit_session_revoked_total", "Sessions revoked."},
}
