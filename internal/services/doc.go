// Package services bundles the coachd services so transports and commands
// take one dependency instead of many.
package services
