package platform

import "fmt"

// RouteHostname builds the public hostname for a subdomain in a zone.
// Example: app.example.com
func RouteHostname(subdomain, zoneName string) string {
	return fmt.Sprintf("%s.%s", subdomain, zoneName)
}

// TunnelCNAMETarget is the DNS target that routes a hostname into the tunnel.
func TunnelCNAMETarget(tunnelID string) string {
	return tunnelID + ".cfargotunnel.com"
}
