package utils

import (
	"strings"

	"github.com/google/uuid"
)

// ProcessNonce returns a short random prefix minted once per call. Used to
// namespace monotonic connection handles so a restarted process can never
// collide with handles a peer cached from the previous run.
func ProcessNonce() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// InstanceID identifies one coordinator process, e.g. in published events.
func InstanceID() string {
	return uuid.NewString()
}
