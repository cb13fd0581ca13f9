// Package ingest maps fetched Bugzilla records onto the relational schema.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/bugzilla"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/store"
)

// Ingester persists fetched bug records, resolving lookup and user
// references as it goes.
type Ingester struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates an Ingester.
func New(s *store.Store, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{store: s, logger: logger}
}

// Result summarizes one SaveBugs pass.
type Result struct {
	Created int
	Updated int
	Failed  int
}

// SaveBugs walks the fetched records in order. Absent bugs are created,
// present ones updated in place. Each record runs in its own transaction,
// so one malformed record fails alone and everything committed before it
// stays committed. The joined per-record errors are returned alongside the
// counts.
func (ing *Ingester) SaveBugs(ctx context.Context, records []bugzilla.Bug) (Result, error) {
	var res Result
	var errs []error

	for i := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rec := &records[i]

		exists, err := ing.store.BugExists(rec.ID)
		if err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}

		if exists {
			err = ing.UpdateBug(rec)
		} else {
			_, err = ing.CreateBug(rec)
		}
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("bug %d: %w", rec.ID, err))
			ing.logger.Error("failed to save bug", "bzId", rec.ID, "error", err)
			continue
		}

		if exists {
			res.Updated++
		} else {
			res.Created++
			ing.logger.Info("saved bug", "bzId", rec.ID)
		}
	}

	return res, errors.Join(errs...)
}

// CreateBug persists a new bug record together with its associations and
// self-referential link edges. The caller is expected to have checked that
// no bug with the same external id exists.
func (ing *Ingester) CreateBug(rec *bugzilla.Bug) (*store.Bug, error) {
	if err := validate(rec); err != nil {
		return nil, err
	}

	var bug *store.Bug
	err := ing.store.DB().Transaction(func(tx *gorm.DB) error {
		refs, err := resolveRefs(tx, rec)
		if err != nil {
			return err
		}

		deadline, err := parseDeadline(rec.Deadline)
		if err != nil {
			return err
		}

		bug = &store.Bug{
			BzID:  rec.ID,
			Alias: firstAlias(rec.Alias),

			Summary:    rec.Summary,
			Resolution: rec.Resolution,
			Whiteboard: rec.Whiteboard,
			URL:        rec.URL,
			Version:    rec.Version,

			IsCCAccessible:      rec.IsCCAccessible,
			IsConfirmed:         rec.IsConfirmed,
			IsCreatorAccessible: rec.IsCreatorAccessible,
			IsOpen:              rec.IsOpen,

			CreationTime:   rec.CreationTime,
			LastChangeTime: rec.LastChangeTime,
			Deadline:       deadline,
			DupeOf:         rec.DupeOf,
		}
		refs.apply(bug)

		if err := tx.Create(bug).Error; err != nil {
			return fmt.Errorf("create bug row: %w", err)
		}

		return replaceAllLinks(tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return bug, nil
}

// UpdateBug refreshes a previously ingested bug from a newly fetched
// record: scalar fields, lookup and user references, many-to-many
// associations and link edges are all replaced by the upstream state.
func (ing *Ingester) UpdateBug(rec *bugzilla.Bug) error {
	if err := validate(rec); err != nil {
		return err
	}

	return ing.store.DB().Transaction(func(tx *gorm.DB) error {
		var bug store.Bug
		if err := tx.Where("bz_id = ?", rec.ID).First(&bug).Error; err != nil {
			return fmt.Errorf("load bug row: %w", err)
		}

		refs, err := resolveRefs(tx, rec)
		if err != nil {
			return err
		}

		deadline, err := parseDeadline(rec.Deadline)
		if err != nil {
			return err
		}

		bug.Alias = firstAlias(rec.Alias)
		bug.Summary = rec.Summary
		bug.Resolution = rec.Resolution
		bug.Whiteboard = rec.Whiteboard
		bug.URL = rec.URL
		bug.Version = rec.Version
		bug.IsCCAccessible = rec.IsCCAccessible
		bug.IsConfirmed = rec.IsConfirmed
		bug.IsCreatorAccessible = rec.IsCreatorAccessible
		bug.IsOpen = rec.IsOpen
		bug.CreationTime = rec.CreationTime
		bug.LastChangeTime = rec.LastChangeTime
		bug.Deadline = deadline
		bug.DupeOf = rec.DupeOf
		bug.CC = nil
		bug.Flags = nil
		bug.Groups = nil
		bug.Keywords = nil
		bug.Aliases = nil
		refs.apply(&bug)

		if err := tx.Omit("CC", "Flags", "Groups", "Keywords", "Aliases").Save(&bug).Error; err != nil {
			return fmt.Errorf("update bug row: %w", err)
		}

		assoc := map[string]any{
			"CC":       toAnySlice(refs.cc),
			"Flags":    toAnySlice(refs.flags),
			"Groups":   toAnySlice(refs.groups),
			"Keywords": toAnySlice(refs.keywords),
			"Aliases":  toAnySlice(refs.aliases),
		}
		for name, values := range assoc {
			if err := tx.Model(&bug).Association(name).Replace(values.([]any)...); err != nil {
				return fmt.Errorf("replace %s association: %w", name, err)
			}
		}

		return replaceAllLinks(tx, rec)
	})
}

// ReconcileLinks resolves link edges whose target bugs have since been
// ingested. Safe to run at any time.
func (ing *Ingester) ReconcileLinks(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resolved, err := ing.store.ResolveLinks()
	if err != nil {
		return 0, err
	}
	if resolved > 0 {
		ing.logger.Info("resolved bug links", "count", resolved)
	}
	return resolved, nil
}

func replaceAllLinks(tx *gorm.DB, rec *bugzilla.Bug) error {
	for kind, targets := range map[store.LinkKind][]int64{
		store.LinkBlocks:    rec.Blocks,
		store.LinkDependsOn: rec.DependsOn,
		store.LinkSeeAlso:   rec.SeeAlso,
	} {
		if err := store.ReplaceLinks(tx, rec.ID, kind, targets); err != nil {
			return err
		}
	}
	return nil
}

func validate(rec *bugzilla.Bug) error {
	if rec.ID == 0 {
		return errors.New("missing id")
	}
	var missing []string
	if rec.Component == "" {
		missing = append(missing, "component")
	}
	if rec.Product == "" {
		missing = append(missing, "product")
	}
	if rec.Severity == "" {
		missing = append(missing, "severity")
	}
	if rec.Status == "" {
		missing = append(missing, "status")
	}
	if userEmail(rec.CreatorDetail, rec.Creator) == "" {
		missing = append(missing, "creator")
	}
	if len(missing) > 0 {
		return fmt.Errorf("record missing required fields: %v", missing)
	}
	return nil
}

func userEmail(detail *bugzilla.UserDetail, login string) string {
	if detail != nil && detail.Email != "" {
		return detail.Email
	}
	return login
}

func firstAlias(aliases []string) string {
	if len(aliases) == 0 {
		return ""
	}
	return aliases[0]
}

func parseDeadline(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, *raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable deadline %q", *raw)
}

func toAnySlice[T any](values []T) []any {
	out := make([]any, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}
