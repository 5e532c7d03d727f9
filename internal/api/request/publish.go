package request

// Publish holds the request body for publishing a local service.
type Publish struct {
	Subdomain        string `json:"subdomain" validate:"required,max=200,subdomain"`
	LocalPort        int    `json:"local_port" validate:"required,min=1,max=65535"`
	LocalHost        string `json:"local_host" validate:"omitempty,hostname|ip"`
	Scheme           string `json:"scheme" validate:"omitempty,oneof=http https"`
	ZoneName         string `json:"zone_name" validate:"omitempty,fqdn"`
	ProjectID        string `json:"project_id" validate:"omitempty,max=255"`
	Description      string `json:"description" validate:"omitempty,max=1000"`
	EnableProtection bool   `json:"enable_protection"`
	Websocket        bool   `json:"websocket"`
}

// UpdatePort holds the request body for repointing a route.
type UpdatePort struct {
	LocalPort int    `json:"local_port" validate:"required,min=1,max=65535"`
	LocalHost string `json:"local_host" validate:"omitempty,hostname|ip"`
}

// Toggle switches a route feature on or off.
type Toggle struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// DeleteOrphans must carry confirm=true to delete anything.
type DeleteOrphans struct {
	Confirm bool `json:"confirm"`
}
