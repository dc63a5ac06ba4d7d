// Package account implements the user-account lifecycle: registration with
// email verification, activation, profile updates with attached image
// management, password changes, and password-gated account deletion.
//
// Persistence, mail delivery, and asset storage are injectable collaborators;
// business rules live in command handlers that can be wired to any boundary.
package account
