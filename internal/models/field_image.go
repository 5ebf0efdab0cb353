package models

// FieldImageAnalysis is the structured damage report for one field photo.
type FieldImageAnalysis struct {
	DamageDetected         bool   `json:"damage_detected"`
	DamagePercentage       int    `json:"damage_percentage"`
	DamageType             string `json:"damage_type"`
	CropCondition          string `json:"crop_condition"`
	InfrastructureAffected bool   `json:"infrastructure_affected"`
	RecoveryEstimate       string `json:"recovery_estimate"`
	DetailedAnalysis       string `json:"detailed_analysis"`
}

// FieldImageResponse is the body of a successful image analysis.
type FieldImageResponse struct {
	Success  bool               `json:"success"`
	Image    string             `json:"image_analyzed"`
	Analysis FieldImageAnalysis `json:"analysis"`
	Time     string             `json:"timestamp"`
}
