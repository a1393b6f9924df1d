package ws

import (
	"bytes"
	"encoding/json"

	"chatrelay/internal/models"
)

func errorEvent(message string) models.ServerEvent {
	return models.ServerEvent{Type: models.EvtError, Payload: models.ErrorNotice{Message: message}}
}

// decodeStrict rejects payloads carrying fields outside the command's shape,
// so malformed frames fail at the boundary instead of at point of use.
func decodeStrict(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
