package domain

// Well-known chunk sources.
const (
	SourceKnowledgeBase = "knowledge_base"
	SourceCaseLogExcel  = "case_log_excel"
	SourceCaseLogCSV    = "case_log_csv"
)

// Logical collection names.
const (
	CollectionCaseHistory   = "case_history"
	CollectionKnowledgeBase = "knowledge_base"
)

// Chunk is a token-bounded slice of a document as stored in the vector index.
type Chunk struct {
	ID         string
	Text       string
	Source     string
	ChunkIndex int
	RowID      string
	RowIndex   int // 0 when not a case row
	Sheet      string
	Path       string
}

// Payload flattens the chunk into the index payload. Empty row and sheet
// metadata are omitted.
func (c *Chunk) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"text":        c.Text,
		"source":      c.Source,
		"chunk_index": c.ChunkIndex,
		"path":        c.Path,
	}
	if c.RowID != "" {
		p["row_id"] = c.RowID
	}
	if c.RowIndex > 0 {
		p["row_index"] = c.RowIndex
	}
	if c.Sheet != "" {
		p["sheet"] = c.Sheet
	}
	return p
}

// VectorPoint is one upsert unit for the vector index.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// VectorHit is one ranked search result. Metadata is the payload minus text.
type VectorHit struct {
	ID       string                 `json:"id"`
	Score    float32                `json:"score"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}
