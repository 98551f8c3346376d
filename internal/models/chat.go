package models

// ChatResponse is the answer returned by the question-answering endpoint for a single question.
//
// RowCount is decoded for completeness but never displayed: the transcript recomputes the row count
// from len(Result), so a server that disagrees with its own result list cannot mislead the user.
type ChatResponse struct {
	SQLQuery    string  `json:"sql_query"`
	Result      [][]any `json:"result"`
	Explanation string  `json:"explanation"`
	RowCount    int     `json:"row_count"`
	ModelUsed   string  `json:"model_used,omitempty"`
}

// Health is the report returned by the health endpoint of the question-answering server.
type Health struct {
	API          string `json:"api"`
	Database     string `json:"database"`
	Ollama       string `json:"ollama"`
	Model        string `json:"model,omitempty"`
	StudentCount int    `json:"student_count"`
}

// Healthy reports whether both the server process and its model backend are available.
func (h Health) Healthy() bool {
	return h.API == "running" && h.Ollama == "connected"
}
