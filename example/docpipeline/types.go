package docpipeline

// DocumentInput is the initial input for the document pipeline
type DocumentInput struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
	Lang       string `json:"lang"`
}

// DocumentResult is the pipeline's final payload
type DocumentResult struct {
	DocumentID     string   `json:"documentId"`
	Entities       []string `json:"entities"`
	Summary        string   `json:"summary,omitempty"`
	Classification string   `json:"classification"`
	WordCount      int      `json:"wordCount"`
	Validated      bool     `json:"validated"`
}
