package models

// ResultMessage is the Kafka payload carrying one raw result from a search
// round to the worker. Empty Topics means every configured topic.
type ResultMessage struct {
	Round  string    `json:"round"`
	Page   int       `json:"page"`
	Topics []string  `json:"topics,omitempty"`
	Result RawResult `json:"result"`
}

// DedupeKey identifies the message within its round so redeliveries are
// skipped while a later round may store the same URL again.
func (m ResultMessage) DedupeKey() string {
	return m.Round + "|" + m.Result.Link
}
