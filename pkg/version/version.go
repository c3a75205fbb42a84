// Package version provides version information for the pricespread application.
package version

// Version is the current version of the pricespread application.
const Version = "0.3.0"

// AgentString returns the User-Agent sent to exchange APIs.
// Format: pricespread/{version}
func AgentString() string {
	return "pricespread/" + Version
}
