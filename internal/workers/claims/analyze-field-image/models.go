// internal/workers/claims/analyze-field-image/models.go
package analyzefieldimage

import "crop-claims/internal/models"

// Input is one field photo. Name is only echoed back.
type Input struct {
	Name  string `json:"imageName,omitempty"`
	Image []byte `json:"image"` // base64 in job variables
}

type Output struct {
	Name     string                    `json:"imageName,omitempty"`
	MIMEType string                    `json:"mimeType"`
	Analysis models.FieldImageAnalysis `json:"analysis"`
}
