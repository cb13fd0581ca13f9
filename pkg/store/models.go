// Package store holds the relational schema and resolver operations for
// mirrored Bugzilla data.
package store

import (
	"time"
)

// NamedLookup is the common shape of a name-keyed reference row. Category
// values repeated across bugs (severity, status, ...) are normalized into
// one row per distinct name.
type NamedLookup struct {
	ID   uint   `gorm:"primarykey"`
	Name string `gorm:"column:name;size:200;uniqueIndex;not null"`
}

// GetID returns the primary key.
func (n NamedLookup) GetID() uint { return n.ID }

// GetName returns the unique name.
func (n NamedLookup) GetName() string { return n.Name }

type Classification struct{ NamedLookup }

func (Classification) TableName() string { return "classifications" }

type Flag struct{ NamedLookup }

func (Flag) TableName() string { return "flags" }

type Group struct{ NamedLookup }

func (Group) TableName() string { return "groups" }

type Keyword struct{ NamedLookup }

func (Keyword) TableName() string { return "keywords" }

type OpSys struct{ NamedLookup }

func (OpSys) TableName() string { return "op_sys" }

type Platform struct{ NamedLookup }

func (Platform) TableName() string { return "platforms" }

type Priority struct{ NamedLookup }

func (Priority) TableName() string { return "priorities" }

type Product struct{ NamedLookup }

func (Product) TableName() string { return "products" }

type Severity struct{ NamedLookup }

func (Severity) TableName() string { return "severities" }

type Status struct{ NamedLookup }

func (Status) TableName() string { return "statuses" }

type TargetMilestone struct{ NamedLookup }

func (TargetMilestone) TableName() string { return "target_milestones" }

// Alias rows hold the bug aliases as lookup entities, distinct from the
// Bug.Alias text column which keeps the upstream value verbatim.
type Alias struct{ NamedLookup }

func (Alias) TableName() string { return "aliases" }

// Component is scoped by product, so uniqueness is per (product, name).
type Component struct {
	ID      uint   `gorm:"primarykey"`
	Product string `gorm:"column:product;size:200;uniqueIndex:idx_component_product_name,priority:1;not null"`
	Name    string `gorm:"column:name;size:200;uniqueIndex:idx_component_product_name,priority:2;not null"`
}

func (Component) TableName() string { return "components" }

// User is the minimal issue-participant identity: id, unique email, and a
// display name split on the first space. No authentication fields live here.
type User struct {
	ID        uint   `gorm:"primarykey"`
	Email     string `gorm:"column:email;size:254;uniqueIndex;not null"`
	FirstName string `gorm:"column:first_name;size:150"`
	LastName  string `gorm:"column:last_name;size:150"`
}

func (User) TableName() string { return "users" }

// Bug is one mirrored issue. bz_id is the tracker-assigned identifier and
// is unique independent of the store's own primary key.
type Bug struct {
	ID   uint  `gorm:"primarykey"`
	BzID int64 `gorm:"column:bz_id;uniqueIndex;not null"`

	Alias string `gorm:"column:alias;size:50"`

	Summary    string `gorm:"column:summary;type:text"`
	Resolution string `gorm:"column:resolution;type:text"`
	Whiteboard string `gorm:"column:whiteboard;type:text"`
	URL        string `gorm:"column:url;size:512"`
	Version    string `gorm:"column:version;size:64"`

	IsCCAccessible      bool `gorm:"column:is_cc_accessible"`
	IsConfirmed         bool `gorm:"column:is_confirmed"`
	IsCreatorAccessible bool `gorm:"column:is_creator_accessible"`
	IsOpen              bool `gorm:"column:is_open;index"`

	CreationTime   time.Time  `gorm:"column:creation_time;not null"`
	LastChangeTime *time.Time `gorm:"column:last_change_time"`
	Deadline       *time.Time `gorm:"column:deadline"`

	DupeOf *int64 `gorm:"column:dupe_of"`

	ClassificationID *uint           `gorm:"column:classification_id"`
	Classification   *Classification `gorm:"foreignKey:ClassificationID"`
	ComponentID      uint            `gorm:"column:component_id;not null"`
	Component        Component       `gorm:"foreignKey:ComponentID"`
	OpSysID          *uint           `gorm:"column:op_sys_id"`
	OpSys            *OpSys          `gorm:"foreignKey:OpSysID"`
	PlatformID       *uint           `gorm:"column:platform_id"`
	Platform         *Platform       `gorm:"foreignKey:PlatformID"`
	PriorityID       *uint           `gorm:"column:priority_id"`
	Priority         *Priority       `gorm:"foreignKey:PriorityID"`
	ProductID        uint            `gorm:"column:product_id;not null"`
	Product          Product         `gorm:"foreignKey:ProductID"`
	SeverityID       uint            `gorm:"column:severity_id;not null"`
	Severity         Severity        `gorm:"foreignKey:SeverityID"`
	StatusID          uint             `gorm:"column:status_id;not null"`
	Status            Status           `gorm:"foreignKey:StatusID"`
	TargetMilestoneID *uint            `gorm:"column:target_milestone_id"`
	TargetMilestone   *TargetMilestone `gorm:"foreignKey:TargetMilestoneID"`

	CreatorID    uint  `gorm:"column:creator_id;not null"`
	Creator      User  `gorm:"foreignKey:CreatorID"`
	AssignedToID *uint `gorm:"column:assigned_to_id"`
	AssignedTo   *User `gorm:"foreignKey:AssignedToID"`
	QaContactID  *uint `gorm:"column:qa_contact_id"`
	QaContact    *User `gorm:"foreignKey:QaContactID"`

	CC       []User    `gorm:"many2many:bug_cc"`
	Flags    []Flag    `gorm:"many2many:bug_flags"`
	Groups   []Group   `gorm:"many2many:bug_groups"`
	Keywords []Keyword `gorm:"many2many:bug_keywords"`
	Aliases  []Alias   `gorm:"many2many:bug_aliases"`
}

func (Bug) TableName() string { return "bugs" }

// LinkKind distinguishes the three self-referential relationship lists.
type LinkKind string

const (
	LinkBlocks    LinkKind = "blocks"
	LinkDependsOn LinkKind = "depends_on"
	LinkSeeAlso   LinkKind = "see_also"
)

// BugLink is a directed edge between two bugs keyed by their external ids.
// The target may not exist in the store yet; Resolved flips to true once a
// reconciliation pass finds both endpoints present.
type BugLink struct {
	ID       uint     `gorm:"primarykey"`
	FromBzID int64    `gorm:"column:from_bz_id;uniqueIndex:idx_bug_link_edge,priority:1;not null"`
	ToBzID   int64    `gorm:"column:to_bz_id;uniqueIndex:idx_bug_link_edge,priority:2;index;not null"`
	Kind     LinkKind `gorm:"column:kind;size:16;uniqueIndex:idx_bug_link_edge,priority:3;not null"`
	Resolved bool     `gorm:"column:resolved;index;not null;default:false"`
}

func (BugLink) TableName() string { return "bug_links" }
