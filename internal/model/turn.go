package model

// Turn is a normalized answer kept in the history store.
type Turn struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Variant        string `json:"variant"`
	Answer         string `json:"answer"`
	NormalizedText string `json:"normalized_text"`
	Citations      string `json:"citations"`
	Intent         string `json:"intent"`
	Ctime          int64  `json:"ctime"`
}
