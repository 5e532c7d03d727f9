// Package api provides the tunnel route REST API.
//
//	@title						Dev Tunnel API
//	@version					1.0
//	@description				Publishes local services through a tunnel and keeps the route store in step with it.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
package api
