// Package identity defines the user account model shared by the engine,
// the relational user directory, and integrating applications. It carries
// the role taxonomy of the marketplace platform and the account lockout
// state machine that gates authentication.
package identity
