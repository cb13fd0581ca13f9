package ingest

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/bugzilla"
	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/store"
)

// resolvedRefs carries every lookup and user row a bug record references,
// resolved (or lazily created) against the store.
type resolvedRefs struct {
	classification *store.Classification
	component      *store.Component
	opSys          *store.OpSys
	platform       *store.Platform
	priority       *store.Priority
	product        *store.Product
	severity       *store.Severity
	status         *store.Status
	milestone      *store.TargetMilestone

	creator    *store.User
	assignedTo *store.User
	qaContact  *store.User

	cc       []store.User
	flags    []store.Flag
	groups   []store.Group
	keywords []store.Keyword
	aliases  []store.Alias
}

func resolveRefs(tx *gorm.DB, rec *bugzilla.Bug) (*resolvedRefs, error) {
	refs := &resolvedRefs{}
	var err error

	if refs.component, err = store.GetOrCreateComponent(tx, rec.Product, rec.Component); err != nil {
		return nil, err
	}
	if refs.product, err = store.GetOrCreateLookup[store.Product](tx, rec.Product); err != nil {
		return nil, err
	}
	if refs.severity, err = store.GetOrCreateLookup[store.Severity](tx, rec.Severity); err != nil {
		return nil, err
	}
	if refs.status, err = store.GetOrCreateLookup[store.Status](tx, rec.Status); err != nil {
		return nil, err
	}
	if rec.Classification != "" {
		if refs.classification, err = store.GetOrCreateLookup[store.Classification](tx, rec.Classification); err != nil {
			return nil, err
		}
	}
	if rec.OpSys != "" {
		if refs.opSys, err = store.GetOrCreateLookup[store.OpSys](tx, rec.OpSys); err != nil {
			return nil, err
		}
	}
	if rec.Platform != "" {
		if refs.platform, err = store.GetOrCreateLookup[store.Platform](tx, rec.Platform); err != nil {
			return nil, err
		}
	}
	if rec.Priority != "" {
		if refs.priority, err = store.GetOrCreateLookup[store.Priority](tx, rec.Priority); err != nil {
			return nil, err
		}
	}
	if rec.TargetMilestone != "" {
		if refs.milestone, err = store.GetOrCreateLookup[store.TargetMilestone](tx, rec.TargetMilestone); err != nil {
			return nil, err
		}
	}

	if refs.creator, err = resolveUserRef(tx, rec.CreatorDetail, rec.Creator); err != nil {
		return nil, fmt.Errorf("resolve creator: %w", err)
	}
	if refs.assignedTo, err = resolveUserRef(tx, rec.AssignedToDetail, rec.AssignedTo); err != nil {
		return nil, fmt.Errorf("resolve assigned_to: %w", err)
	}
	if refs.qaContact, err = resolveUserRef(tx, rec.QaContactDetail, rec.QaContact); err != nil {
		return nil, fmt.Errorf("resolve qa_contact: %w", err)
	}

	if refs.cc, err = resolveCC(tx, rec); err != nil {
		return nil, err
	}

	for _, flag := range rec.Flags {
		resolved, err := store.GetOrCreateLookup[store.Flag](tx, flag.Name)
		if err != nil {
			return nil, err
		}
		refs.flags = append(refs.flags, *resolved)
	}
	for _, name := range rec.Groups {
		resolved, err := store.GetOrCreateLookup[store.Group](tx, name)
		if err != nil {
			return nil, err
		}
		refs.groups = append(refs.groups, *resolved)
	}
	for _, name := range rec.Keywords {
		resolved, err := store.GetOrCreateLookup[store.Keyword](tx, name)
		if err != nil {
			return nil, err
		}
		refs.keywords = append(refs.keywords, *resolved)
	}
	for _, name := range rec.Alias {
		resolved, err := store.GetOrCreateLookup[store.Alias](tx, name)
		if err != nil {
			return nil, err
		}
		refs.aliases = append(refs.aliases, *resolved)
	}

	return refs, nil
}

// resolveUserRef resolves a user from the nested descriptor when present,
// falling back to the flat login string normalized into a descriptor where
// email and display name are identical. Returns nil for an absent user.
func resolveUserRef(tx *gorm.DB, detail *bugzilla.UserDetail, login string) (*store.User, error) {
	switch {
	case detail != nil && detail.Email != "":
		return store.GetOrCreateUser(tx, detail.Email, detail.RealName)
	case detail != nil:
		return nil, fmt.Errorf("user descriptor missing email")
	case login != "":
		return store.GetOrCreateUser(tx, login, login)
	default:
		return nil, nil
	}
}

func resolveCC(tx *gorm.DB, rec *bugzilla.Bug) ([]store.User, error) {
	var users []store.User
	if len(rec.CCDetail) > 0 {
		for i := range rec.CCDetail {
			detail := &rec.CCDetail[i]
			if detail.Email == "" {
				return nil, fmt.Errorf("cc descriptor %d missing email", i)
			}
			user, err := store.GetOrCreateUser(tx, detail.Email, detail.RealName)
			if err != nil {
				return nil, err
			}
			users = append(users, *user)
		}
		return users, nil
	}
	for _, login := range rec.CC {
		user, err := store.GetOrCreateUser(tx, login, login)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, nil
}

func (r *resolvedRefs) apply(bug *store.Bug) {
	bug.ComponentID = r.component.ID
	bug.ProductID = r.product.ID
	bug.SeverityID = r.severity.ID
	bug.StatusID = r.status.ID
	bug.CreatorID = r.creator.ID

	bug.ClassificationID = optionalID(r.classification)
	bug.OpSysID = optionalID(r.opSys)
	bug.PlatformID = optionalID(r.platform)
	bug.PriorityID = optionalID(r.priority)
	bug.TargetMilestoneID = optionalID(r.milestone)

	bug.AssignedToID = optionalUserID(r.assignedTo)
	bug.QaContactID = optionalUserID(r.qaContact)

	bug.CC = r.cc
	bug.Flags = r.flags
	bug.Groups = r.groups
	bug.Keywords = r.keywords
	bug.Aliases = r.aliases
}

func optionalID[T interface{ GetID() uint }](entity *T) *uint {
	if entity == nil {
		return nil
	}
	id := (*entity).GetID()
	return &id
}

func optionalUserID(user *store.User) *uint {
	if user == nil {
		return nil
	}
	id := user.ID
	return &id
}
