package messages

const (
	// InitMessageSignature is the signature byte for the INIT message
	InitMessageSignature = 0x01
)

// InitMessage Represents an INIT message
type InitMessage struct {
	clientName string
	authToken  map[string]interface{}
}

// NewInitMessage gets a new InitMessage struct. authToken is the opaque
// map handed to INIT as-is; building it from a username/password or a
// bearer scheme is the caller's concern (see the Config auth token
// option), not this message's.
func NewInitMessage(clientName string, authToken map[string]interface{}) InitMessage {
	if authToken == nil {
		authToken = map[string]interface{}{"scheme": "none"}
	}
	return InitMessage{
		clientName: clientName,
		authToken:  authToken,
	}
}

// Signature gets the signature byte for the struct
func (i InitMessage) Signature() int {
	return InitMessageSignature
}

// Fields gets the fields to encode for the struct
func (i InitMessage) Fields() []interface{} {
	return []interface{}{i.clientName, i.authToken}
}
