// Package gate decides which top-level screen a client shows for the current
// guard state.
//
// [Gate.Resolve] never routes into the app while the guard is loading, sends
// signed-out users to sign-in, and sends users whose profile demands a password
// change to onboarding. [RESTProfiles] reads profiles from the hosted table API.
package gate
