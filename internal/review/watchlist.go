package review

import (
	"context"
	"sort"
	"strings"
	"time"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
)

// MatchPolicy decides which watch items cover a target path.
type MatchPolicy string

const (
	// MatchExact notifies only watchers of the exact path.
	MatchExact MatchPolicy = "exact"
	// MatchSubtree also notifies watchers of any ancestor: watching a
	// subject covers its types and contents.
	MatchSubtree MatchPolicy = "subtree"
)

// WatchlistIndex is the per-user set of content addresses to notify about.
// Watch and unwatch are idempotent; the (user, target) pair is the item's
// identity.
type WatchlistIndex struct {
	store  docstore.Store
	policy MatchPolicy
	now    func() time.Time
}

func NewWatchlistIndex(store docstore.Store, policy MatchPolicy) *WatchlistIndex {
	if policy != MatchExact {
		policy = MatchSubtree
	}
	return &WatchlistIndex{store: store, policy: policy, now: time.Now}
}

func (w *WatchlistIndex) Watch(ctx context.Context, user, targetPath string) error {
	if strings.TrimSpace(user) == "" {
		return validationError("user is required")
	}
	target, err := content.ParseAddress(targetPath)
	if err != nil {
		return validationError(err.Error())
	}
	item := WatchItem{TargetPath: target.String(), CreatedAt: w.now().UTC()}
	return w.store.Put(ctx, content.WatchItemPath(user, target), item)
}

func (w *WatchlistIndex) Unwatch(ctx context.Context, user, targetPath string) error {
	if strings.TrimSpace(user) == "" {
		return validationError("user is required")
	}
	target, err := content.ParseAddress(targetPath)
	if err != nil {
		return validationError(err.Error())
	}
	return w.store.Delete(ctx, content.WatchItemPath(user, target))
}

// Watching lists the addresses a user watches, sorted.
func (w *WatchlistIndex) Watching(ctx context.Context, user string) ([]WatchItem, error) {
	raw, err := w.store.ListPrefix(ctx, content.UserWatchPrefix(user))
	if err != nil {
		return nil, err
	}
	items := make([]WatchItem, 0, len(raw))
	for _, entry := range raw {
		var item WatchItem
		if err := decode(entry.Doc, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].TargetPath < items[j].TargetPath })
	return items, nil
}

// SubscribersOf returns the users whose watch items cover the target under
// the configured policy, sorted and without duplicates.
func (w *WatchlistIndex) SubscribersOf(ctx context.Context, targetPath string) ([]string, error) {
	target, err := content.ParseAddress(targetPath)
	if err != nil {
		return nil, validationError(err.Error())
	}

	raw, err := w.store.ListPrefix(ctx, content.WatchlistPrefix)
	if err != nil {
		return nil, err
	}

	users := make(map[string]struct{})
	for _, entry := range raw {
		rest := strings.TrimPrefix(entry.Path, content.WatchlistPrefix)
		user, _, ok := strings.Cut(rest, "/")
		if !ok || user == "" {
			continue
		}
		var item WatchItem
		if err := decode(entry.Doc, &item); err != nil {
			return nil, err
		}
		watched := content.Address(item.TargetPath)
		switch w.policy {
		case MatchExact:
			if watched == target {
				users[user] = struct{}{}
			}
		default:
			if watched.Covers(target) {
				users[user] = struct{}{}
			}
		}
	}

	subscribers := make([]string, 0, len(users))
	for user := range users {
		subscribers = append(subscribers, user)
	}
	sort.Strings(subscribers)
	return subscribers, nil
}
