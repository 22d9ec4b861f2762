package model

// ReviewAnalysis is the structured review the analyze stage asks the model for.
type ReviewAnalysis struct {
	Summary  string          `json:"summary" jsonschema_description:"Two to four sentence overview of the change and its risk"`
	Findings []ReviewFinding `json:"findings" jsonschema_description:"Concrete issues or suggestions, most important first"`
}

type ReviewFinding struct {
	File       string `json:"file" jsonschema_description:"Path of the file the finding refers to"`
	Severity   string `json:"severity" jsonschema:"enum=info,enum=warning,enum=error"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}
