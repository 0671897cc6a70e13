package model

// ProgressStep is one scripted entry of a simulated processing step.
type ProgressStep struct {
	Progress int    `yaml:"progress" json:"progress"`
	Message  string `yaml:"message" json:"message"`
}
