package mailer

import "fmt"

// SignupVerificationHTML is the body for the post-registration email
// verification code.
func SignupVerificationHTML(name, code string) string {
	return fmt.Sprintf(`
		<p>Hello %s,</p>
		<p>Thank you for registering. Please use the following code to verify your email address:</p>
		<h3 style="font-size: 24px; font-weight: bold; color: #007bff;">%s</h3>
		<p>This code will expire in 10 minutes.</p>
		<p>If you did not request this, please ignore this email.</p>
	`, name, code)
}

// NewDeviceVerificationHTML is the body for the sign-in verification email sent
// when a login arrives from an unrecognized device or location.
func NewDeviceVerificationHTML(name, code string) string {
	return fmt.Sprintf(`
		<p>Hello %s,</p>
		<p>A sign-in attempt was made from a device or location we haven't seen before.</p>
		<p>If this was you, enter the following code to verify the new device:</p>
		<h3 style="font-size: 24px; font-weight: bold; color: #007bff;">%s</h3>
		<p>This code will expire in 10 minutes.</p>
		<p>If this wasn't you, we recommend changing your password and reviewing your trusted devices.</p>
	`, name, code)
}

// PasswordResetHTML is the body for the forgot-password email.
func PasswordResetHTML(name, link string) string {
	return fmt.Sprintf(`
		<p>Hello %s,</p>
		<p>A password reset was requested for your account. Click the link below to choose a new password:</p>
		<p><a href="%s">%s</a></p>
		<p>The link is valid for a limited time. If you did not request a reset, you can safely ignore this email.</p>
	`, name, link, link)
}
