package request

type CreateProject struct {
	Name string `json:"name" validate:"required,max=255"`
	Path string `json:"path" validate:"required,startswith=/,max=4096"`
}
