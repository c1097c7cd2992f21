// Package provision guarantees a usable register exists for a group
// label. Creation is at-least-once: two racing callers may both create,
// and each converges by re-searching; the backend may transiently hold
// duplicates, which is an operational concern, not a correctness one.
package provision

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"rollbook/internal/register/models"
	dErrors "rollbook/pkg/domain-errors"
	"rollbook/pkg/platform/sentinel"
)

// SchemaStore is the slice of the backend contract provisioning needs.
type SchemaStore interface {
	FindSchemas(ctx context.Context, label string) ([]models.SchemaRef, error)
	CreateSchema(ctx context.Context, label string) (models.SchemaRef, error)
}

// Provisioner resolves or creates the backing register for a label.
type Provisioner struct {
	store  SchemaStore
	logger *slog.Logger
}

func New(store SchemaStore, logger *slog.Logger) *Provisioner {
	return &Provisioner{store: store, logger: logger}
}

// EnsureSchema returns the register for label, creating it when missing.
// Matching is a case-insensitive exact title match. When multiple
// registers carry the label (a lost provisioning race), the first by
// creation order wins and the ambiguity is logged, never surfaced as a
// failure.
func (p *Provisioner) EnsureSchema(ctx context.Context, label string) (models.SchemaRef, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return models.SchemaRef{}, dErrors.New(dErrors.CodeInvalidArgument, "register label is required")
	}

	ref, found, err := p.resolve(ctx, label)
	if err != nil {
		return models.SchemaRef{}, err
	}
	if found {
		return ref, nil
	}

	created, err := p.store.CreateSchema(ctx, label)
	if err != nil {
		// A losing racer may see a duplicate rejection from the backend;
		// the winner's register is authoritative, so re-resolve.
		if errors.Is(err, sentinel.ErrConflict) {
			ref, found, rerr := p.resolve(ctx, label)
			if rerr != nil {
				return models.SchemaRef{}, rerr
			}
			if found {
				return ref, nil
			}
			return models.SchemaRef{}, dErrors.Wrap(err, dErrors.CodeConflict, "register creation raced and no survivor was found")
		}
		return models.SchemaRef{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create register")
	}

	p.logger.InfoContext(ctx, "register created", "label", label, "id", created.ID)
	return created, nil
}

func (p *Provisioner) resolve(ctx context.Context, label string) (models.SchemaRef, bool, error) {
	refs, err := p.store.FindSchemas(ctx, label)
	if err != nil {
		return models.SchemaRef{}, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to search registers")
	}
	if len(refs) == 0 {
		return models.SchemaRef{}, false, nil
	}
	if len(refs) > 1 {
		p.logger.WarnContext(ctx, "multiple registers match label, using first by creation order",
			"label", label,
			"count", len(refs),
			"chosen", refs[0].ID,
		)
	}
	ref := refs[0]
	ref.Created = false
	return ref, true, nil
}
