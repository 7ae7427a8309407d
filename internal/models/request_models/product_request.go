package request_models

import "encoding/json"

type CreateProductRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=200"`
	Description string `json:"description" binding:"max=2000"`
}

type SaveSectionRequest struct {
	Data json.RawMessage `json:"data" binding:"required"`
}

type LockFileRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type AutosaveSessionRequest struct {
	Sections map[string]json.RawMessage `json:"form_data" binding:"required"`
}

type SaveSessionRequest struct {
	Sections  map[string]json.RawMessage `json:"form_data"`
	Changelog string                     `json:"changelog" binding:"max=500"`
}

type RestoreVersionRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}
