package protocol

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewEcho returns a correlation token for an outgoing envelope:
// "client-<unix millis>-<6 hex digits>". The random part comes from a v4
// UUID, so uniqueness is best effort rather than guaranteed.
func NewEcho() string {
	id := uuid.New()
	return fmt.Sprintf("client-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(id[:3]))
}
