package dto

type EnqueueInput struct {
	Operation string
	Table     string
	// RecordKey is taken from the payload "id" field when empty.
	RecordKey string
	// Payload is marshalled to JSON. json.RawMessage and []byte are stored
	// as given once validated.
	Payload interface{}
}
