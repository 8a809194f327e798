// Package auth provides scoped bearer tokens, password credentials and the
// token flows built on top of them (login, registration, password reset and
// email verification).
//
// Token scopes:
//   - Every token carries an issuer and a single audience. A token minted for
//     ScopeForget never verifies under ScopeLogin and vice versa, even though
//     both carry the same subject. Verify reports every failure as the same
//     ErrInvalidToken.
//
// Flows:
//   - TokenFlowService is stateless between calls. The reset and verification
//     confirm steps read everything they need from the token, then consult the
//     UserStore again. A flow that fails after verification returns an error,
//     never a success payload.
//   - Login and password reset requests never reveal whether an email is
//     registered.
//
// Activity sinks:
//   - ActivitySink receives login, registration, reset and verification
//     events. Sinks run best-effort (errors are logged).
//
// Authorization lives in middleware/guard; persistence in repository; the
// notification templates in mailer.
package auth
