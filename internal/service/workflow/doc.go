// Package workflow implements the newsletter editing workflow: generation,
// review and editing, persistence, and distribution.
//
// The state machine is a pure function (Machine.Transition) from a Session
// and an Event to the next Session plus the Effects to perform. Controller
// owns one Session, performs effects against the collaborator interfaces
// defined in this package, and feeds their outcomes back as events. Manager
// keeps one Controller per editor session.
//
// Collaborator implementations live in backend/, generation/, reference/,
// repository/ and dispatch/. This package should never import from api/.
package workflow
