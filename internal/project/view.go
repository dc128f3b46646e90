package project

import (
	"context"
	"fmt"

	"github.com/binal-re/binal/internal/lift"
	"github.com/binal-re/binal/internal/lower"
	"github.com/binal-re/binal/internal/native"
)

// SaveView replaces the project content with everything in view.
func (s *Store) SaveView(ctx context.Context, view native.View) (int, error) {
	all := lift.New(view).All()
	if err := s.Replace(ctx, all); err != nil {
		return 0, err
	}
	s.logger.Debug().Int("objects", all.Len()).Msg("Saved view")
	return all.Len(), nil
}

// LoadInto lowers every stored object into view. Entries whose dependencies are
// missing from the project are reported through a *lower.UnresolvedError after
// everything else has been applied.
func (s *Store) LoadInto(ctx context.Context, view native.View) (int, error) {
	objs, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err := lower.New(view, s.logger).Lower(objs); err != nil {
		return objs.Len(), fmt.Errorf("load project %s: %w", s.path, err)
	}
	s.logger.Debug().Int("objects", objs.Len()).Msg("Loaded view")
	return objs.Len(), nil
}
