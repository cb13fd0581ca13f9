package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"
)

// Named constrains the generic resolver and list helpers to the
// name-keyed lookup tables, all of which embed NamedLookup.
type Named interface {
	Classification | Flag | Group | Keyword | OpSys | Platform |
		Priority | Product | Severity | Status | TargetMilestone | Alias
	GetID() uint
	GetName() string
}

// Store provides resolver and query operations over the mirrored schema.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an open GORM connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for callers that compose their own
// transactions around store operations.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AutoMigrate creates or updates every table in the schema.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(
		&Classification{}, &Component{}, &Flag{}, &Group{}, &Keyword{},
		&OpSys{}, &Platform{}, &Priority{}, &Product{}, &Severity{},
		&Status{}, &TargetMilestone{}, &Alias{},
	); err != nil {
		return fmt.Errorf("auto-migrate lookup tables: %w", err)
	}
	if err := s.db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("auto-migrate users: %w", err)
	}
	if err := s.db.AutoMigrate(&Bug{}); err != nil {
		return fmt.Errorf("auto-migrate bugs: %w", err)
	}
	if err := s.db.AutoMigrate(&BugLink{}); err != nil {
		return fmt.Errorf("auto-migrate bug_links: %w", err)
	}
	return nil
}

// GetOrCreateLookup returns the lookup row of type T with the given name,
// creating it if absent. A unique-index violation on create means another
// writer won the race, so the row is re-read instead of erroring.
func GetOrCreateLookup[T Named](tx *gorm.DB, name string) (*T, error) {
	var entity T
	err := tx.Where("name = ?", name).First(&entity).Error
	if err == nil {
		return &entity, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("look up %T %q: %w", entity, name, err)
	}

	if err := tx.Model(new(T)).Create(map[string]any{"name": name}).Error; err != nil {
		if rerr := tx.Where("name = ?", name).First(&entity).Error; rerr == nil {
			return &entity, nil
		}
		return nil, fmt.Errorf("create %T %q: %w", entity, name, err)
	}

	if err := tx.Where("name = ?", name).First(&entity).Error; err != nil {
		return nil, fmt.Errorf("reload %T %q: %w", entity, name, err)
	}
	return &entity, nil
}

// GetOrCreateComponent resolves a component scoped by product name.
func GetOrCreateComponent(tx *gorm.DB, product, name string) (*Component, error) {
	var component Component
	err := tx.Where("product = ? AND name = ?", product, name).First(&component).Error
	if err == nil {
		return &component, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("look up component %s/%s: %w", product, name, err)
	}

	component = Component{Product: product, Name: name}
	if err := tx.Create(&component).Error; err != nil {
		component = Component{}
		if rerr := tx.Where("product = ? AND name = ?", product, name).First(&component).Error; rerr == nil {
			return &component, nil
		}
		return nil, fmt.Errorf("create component %s/%s: %w", product, name, err)
	}
	return &component, nil
}

// ListComponents returns paginated components ordered by id, optionally
// filtered by product name.
func (s *Store) ListComponents(product string, pageSize int, pageToken string) ([]Component, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Model(&Component{}).Order("id ASC").Limit(pageSize + 1)
	if product != "" {
		query = query.Where("product = ?", product)
	}
	if pageToken != "" {
		after, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("id > ?", after)
	}

	var components []Component
	if err := query.Find(&components).Error; err != nil {
		return nil, "", fmt.Errorf("list components: %w", err)
	}

	var nextToken string
	if len(components) > pageSize {
		nextToken = strconv.FormatUint(uint64(components[pageSize-1].ID), 10)
		components = components[:pageSize]
	}
	return components, nextToken, nil
}

// GetComponent loads a component by primary key. Returns nil, nil if no
// such row exists.
func (s *Store) GetComponent(id uint) (*Component, error) {
	var component Component
	if err := s.db.First(&component, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get component %d: %w", id, err)
	}
	return &component, nil
}

// GetUser loads a user by primary key. Returns nil, nil if no such row exists.
func (s *Store) GetUser(id uint) (*User, error) {
	var user User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

// SplitRealName splits a display name on the first space into first and
// last name components.
func SplitRealName(realName string) (first, last string) {
	first, last, _ = strings.Cut(realName, " ")
	return first, last
}

// GetOrCreateUser resolves a user by email, creating one with the first
// and last name derived from realName if absent.
func GetOrCreateUser(tx *gorm.DB, email, realName string) (*User, error) {
	if email == "" {
		return nil, errors.New("user descriptor missing email")
	}

	var user User
	err := tx.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("look up user %q: %w", email, err)
	}

	first, last := SplitRealName(realName)
	user = User{Email: email, FirstName: first, LastName: last}
	if err := tx.Create(&user).Error; err != nil {
		user = User{}
		if rerr := tx.Where("email = ?", email).First(&user).Error; rerr == nil {
			return &user, nil
		}
		return nil, fmt.Errorf("create user %q: %w", email, err)
	}
	return &user, nil
}

// BugExists reports whether a bug with the given external id is stored.
func (s *Store) BugExists(bzID int64) (bool, error) {
	var count int64
	if err := s.db.Model(&Bug{}).Where("bz_id = ?", bzID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check bug %d: %w", bzID, err)
	}
	return count > 0, nil
}

// GetBugByBzID loads a bug with all associations preloaded.
// Returns nil, nil if no such bug exists.
func (s *Store) GetBugByBzID(bzID int64) (*Bug, error) {
	var bug Bug
	err := s.db.
		Preload("Classification").Preload("Component").Preload("OpSys").
		Preload("Platform").Preload("Priority").Preload("Product").
		Preload("Severity").Preload("Status").Preload("TargetMilestone").
		Preload("Creator").Preload("AssignedTo").Preload("QaContact").
		Preload("CC").Preload("Flags").Preload("Groups").
		Preload("Keywords").Preload("Aliases").
		Where("bz_id = ?", bzID).First(&bug).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bug %d: %w", bzID, err)
	}
	return &bug, nil
}

// BugListFilter defines filters for listing bugs.
type BugListFilter struct {
	Status   string
	Product  string
	Severity string
	Open     *bool
}

// ListBugs returns paginated bugs ordered by external id. pageToken is the
// bz_id of the last record from the previous page; pass "" for the first page.
func (s *Store) ListBugs(filter BugListFilter, pageSize int, pageToken string) ([]Bug, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Model(&Bug{}).
		Preload("Product").Preload("Severity").Preload("Status").
		Preload("Component").Preload("Creator").
		Order("bugs.bz_id ASC").Limit(pageSize + 1)

	if filter.Status != "" {
		query = query.Joins("JOIN statuses ON statuses.id = bugs.status_id").
			Where("statuses.name = ?", filter.Status)
	}
	if filter.Product != "" {
		query = query.Joins("JOIN products ON products.id = bugs.product_id").
			Where("products.name = ?", filter.Product)
	}
	if filter.Severity != "" {
		query = query.Joins("JOIN severities ON severities.id = bugs.severity_id").
			Where("severities.name = ?", filter.Severity)
	}
	if filter.Open != nil {
		query = query.Where("bugs.is_open = ?", *filter.Open)
	}
	if pageToken != "" {
		after, err := strconv.ParseInt(pageToken, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("bugs.bz_id > ?", after)
	}

	var bugs []Bug
	if err := query.Find(&bugs).Error; err != nil {
		return nil, "", fmt.Errorf("list bugs: %w", err)
	}

	var nextToken string
	if len(bugs) > pageSize {
		nextToken = strconv.FormatInt(bugs[pageSize-1].BzID, 10)
		bugs = bugs[:pageSize]
	}
	return bugs, nextToken, nil
}

// ListNamed returns paginated lookup rows of type T ordered by id.
func ListNamed[T Named](s *Store, pageSize int, pageToken string) ([]T, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Model(new(T)).Order("id ASC").Limit(pageSize + 1)
	if pageToken != "" {
		after, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("id > ?", after)
	}

	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("list %T: %w", rows, err)
	}

	var nextToken string
	if len(rows) > pageSize {
		nextToken = strconv.FormatUint(uint64(rows[pageSize-1].GetID()), 10)
		rows = rows[:pageSize]
	}
	return rows, nextToken, nil
}

// GetNamed loads a lookup row of type T by primary key.
// Returns nil, nil if no such row exists.
func GetNamed[T Named](s *Store, id uint) (*T, error) {
	var entity T
	if err := s.db.First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %T %d: %w", entity, id, err)
	}
	return &entity, nil
}

// RenameNamed updates the name of a lookup row. Returns gorm.ErrRecordNotFound
// wrapped if the row does not exist.
func RenameNamed[T Named](s *Store, id uint, name string) (*T, error) {
	result := s.db.Model(new(T)).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return nil, fmt.Errorf("rename %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("rename %d: %w", id, gorm.ErrRecordNotFound)
	}
	return GetNamed[T](s, id)
}

// ListUsers returns paginated users ordered by id.
func (s *Store) ListUsers(pageSize int, pageToken string) ([]User, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Model(&User{}).Order("id ASC").Limit(pageSize + 1)
	if pageToken != "" {
		after, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("id > ?", after)
	}

	var users []User
	if err := query.Find(&users).Error; err != nil {
		return nil, "", fmt.Errorf("list users: %w", err)
	}

	var nextToken string
	if len(users) > pageSize {
		nextToken = strconv.FormatUint(uint64(users[pageSize-1].ID), 10)
		users = users[:pageSize]
	}
	return users, nextToken, nil
}

// ReplaceLinks rewrites the outgoing edges of one kind for a bug. Existing
// edges of that kind are dropped and recreated from targets; resolution
// state is recomputed by the next reconcile pass. Upstream lists can repeat
// an id, so targets is collapsed to a set before inserting.
func ReplaceLinks(tx *gorm.DB, fromBzID int64, kind LinkKind, targets []int64) error {
	if err := tx.Where("from_bz_id = ? AND kind = ?", fromBzID, kind).Delete(&BugLink{}).Error; err != nil {
		return fmt.Errorf("clear %s links for bug %d: %w", kind, fromBzID, err)
	}
	for _, target := range mapset.NewSet(targets...).ToSlice() {
		link := BugLink{FromBzID: fromBzID, ToBzID: target, Kind: kind}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("create %s link %d->%d: %w", kind, fromBzID, target, err)
		}
	}
	return nil
}

// LinksFrom returns all outgoing edges for a bug, resolved or not.
func (s *Store) LinksFrom(bzID int64) ([]BugLink, error) {
	var links []BugLink
	if err := s.db.Where("from_bz_id = ?", bzID).Order("kind ASC, to_bz_id ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list links for bug %d: %w", bzID, err)
	}
	return links, nil
}

// ResolveLinks marks every unresolved edge whose target bug now exists in
// the store. Returns the number of edges resolved.
func (s *Store) ResolveLinks() (int64, error) {
	result := s.db.Model(&BugLink{}).
		Where("resolved = ? AND to_bz_id IN (?)", false,
			s.db.Model(&Bug{}).Select("bz_id")).
		Update("resolved", true)
	if result.Error != nil {
		return 0, fmt.Errorf("resolve links: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UnresolvedLinks returns up to limit edges still pointing at bugs absent
// from the store.
func (s *Store) UnresolvedLinks(limit int) ([]BugLink, error) {
	if limit <= 0 {
		limit = 100
	}
	var links []BugLink
	if err := s.db.Where("resolved = ?", false).
		Order("from_bz_id ASC, to_bz_id ASC").Limit(limit).
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list unresolved links: %w", err)
	}
	return links, nil
}
