package review

import (
	"context"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
)

// ParticipantSource supplies extra recipients for discussion-related events.
type ParticipantSource interface {
	Participants(ctx context.Context, targetPath string) ([]string, error)
}

// ThreadParticipants reads discussion threads from the docstore and returns
// the authors of any thread anchored at the target path.
type ThreadParticipants struct {
	store docstore.Store
}

func NewThreadParticipants(store docstore.Store) *ThreadParticipants {
	return &ThreadParticipants{store: store}
}

func (t *ThreadParticipants) Participants(ctx context.Context, targetPath string) ([]string, error) {
	raw, err := t.store.ListPrefix(ctx, content.ThreadsPrefix)
	if err != nil {
		return nil, err
	}
	var participants []string
	for _, entry := range raw {
		var thread Thread
		if err := decode(entry.Doc, &thread); err != nil {
			return nil, err
		}
		if thread.TargetPath != targetPath {
			continue
		}
		participants = append(participants, thread.Participants...)
	}
	return participants, nil
}
