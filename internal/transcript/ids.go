package transcript

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewConversationID mints a conversation id of the form
// 20260829-153012-1a2b3c4d: creation date, colon-free time, short random
// suffix. Clients compare ids lexicographically for recency; the format
// itself is not a contract.
func NewConversationID() string {
	now := time.Now().UTC()
	return fmt.Sprintf("%s-%s-%s",
		now.Format("20060102"),
		now.Format("150405"),
		uuid.NewString()[:8],
	)
}
