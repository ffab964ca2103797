package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	domaincommand "lab-device-hub/internal/domain/command"
	apperrors "lab-device-hub/pkg/errors"
)

// CommandRepository is an in-memory implementation of the command
// repository.
type CommandRepository struct {
	mu       sync.RWMutex
	commands map[uuid.UUID]*domaincommand.Command
}

func NewCommandRepository() *CommandRepository {
	return &CommandRepository{commands: make(map[uuid.UUID]*domaincommand.Command)}
}

func (r *CommandRepository) Create(_ context.Context, cmd *domaincommand.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *cmd
	r.commands[cmd.ID] = &copied
	return nil
}

func (r *CommandRepository) GetByID(_ context.Context, commandID uuid.UUID) (*domaincommand.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[commandID]
	if !ok {
		return nil, apperrors.ErrCommandNotFound
	}
	copied := *cmd
	return &copied, nil
}

func (r *CommandRepository) Update(_ context.Context, cmd *domaincommand.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.commands[cmd.ID]; !ok {
		return apperrors.ErrCommandNotFound
	}
	copied := *cmd
	r.commands[cmd.ID] = &copied
	return nil
}

func (r *CommandRepository) ListByDevice(_ context.Context, deviceID uuid.UUID, limit int) ([]*domaincommand.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domaincommand.Command, 0)
	for _, cmd := range r.commands {
		if cmd.DeviceID == deviceID {
			copied := *cmd
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *CommandRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*domaincommand.Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domaincommand.Command, 0)
	for _, cmd := range r.commands {
		if cmd.SessionID != nil && *cmd.SessionID == sessionID {
			copied := *cmd
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}
