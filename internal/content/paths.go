package content

// Stored document key layout. Every document family lives under its own
// prefix in the key-path store; per-user families embed the user id so that
// recipient-owned documents need no cross-user coordination.

const (
	ProposalsPrefix = "/proposals/"
	ActivityPrefix  = "/activity/"
	WatchlistPrefix = "/watchlists/"
	OutboxPrefix    = "/outbox/"
	ThreadsPrefix   = "/threads/"
)

func ProposalPath(proposalID string) string {
	return ProposalsPrefix + proposalID
}

func ActivityPath(entryID string) string {
	return ActivityPrefix + entryID
}

// WatchItemPath is the composite identity of a watch item: one document per
// (user, target) pair, so watching twice overwrites in place.
func WatchItemPath(user string, target Address) string {
	return WatchlistPrefix + user + "/" + target.Key()
}

func UserWatchPrefix(user string) string {
	return WatchlistPrefix + user + "/"
}

// NotificationPath keys a recipient's notification by the triggering event
// id. Repeated fan-out of one event lands on the same key, which is what
// makes fan-out idempotent per recipient.
func NotificationPath(user, eventID string) string {
	return NotificationsPrefix(user) + eventID
}

func NotificationsPrefix(user string) string {
	return "/users/" + user + "/notifications/"
}

func ProfilePath(user string) string {
	return "/users/" + user + "/profile"
}

func OutboxPath(eventID string) string {
	return OutboxPrefix + eventID
}

func ThreadPath(threadID string) string {
	return ThreadsPrefix + threadID
}
