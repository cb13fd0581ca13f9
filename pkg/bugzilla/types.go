package bugzilla

import "time"

// UserDetail is the nested user descriptor Bugzilla attaches to
// assigned_to_detail, creator_detail, qa_contact_detail and cc_detail.
type UserDetail struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
}

// Flag is a flag set on a bug. Only the name participates in ingestion.
type Flag struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	TypeID           int64  `json:"type_id"`
	Status           string `json:"status"`
	Setter           string `json:"setter"`
	Requestee        string `json:"requestee,omitempty"`
	CreationDate     string `json:"creation_date,omitempty"`
	ModificationDate string `json:"modification_date,omitempty"`
}

// Bug is one record from the bug resource's "bugs" array. Lookup fields
// arrive as flat name strings; user fields carry both the flat login and a
// nested *_detail descriptor.
type Bug struct {
	ID    int64    `json:"id"`
	Alias []string `json:"alias"`

	AssignedTo       string      `json:"assigned_to"`
	AssignedToDetail *UserDetail `json:"assigned_to_detail"`
	Creator          string      `json:"creator"`
	CreatorDetail    *UserDetail `json:"creator_detail"`
	QaContact        string      `json:"qa_contact"`
	QaContactDetail  *UserDetail `json:"qa_contact_detail"`

	CC       []string     `json:"cc"`
	CCDetail []UserDetail `json:"cc_detail"`

	Blocks    []int64  `json:"blocks"`
	DependsOn []int64  `json:"depends_on"`
	SeeAlso   []int64  `json:"see_also"`
	DupeOf    *int64   `json:"dupe_of"`
	Flags     []Flag   `json:"flags"`
	Groups    []string `json:"groups"`
	Keywords  []string `json:"keywords"`

	Classification  string `json:"classification"`
	Component       string `json:"component"`
	OpSys           string `json:"op_sys"`
	Platform        string `json:"platform"`
	Priority        string `json:"priority"`
	Product         string `json:"product"`
	Severity        string `json:"severity"`
	Status          string `json:"status"`
	TargetMilestone string `json:"target_milestone"`

	CreationTime   time.Time  `json:"creation_time"`
	LastChangeTime *time.Time `json:"last_change_time"`
	Deadline       *string    `json:"deadline"`

	IsCCAccessible      bool `json:"is_cc_accessible"`
	IsConfirmed         bool `json:"is_confirmed"`
	IsCreatorAccessible bool `json:"is_creator_accessible"`
	IsOpen              bool `json:"is_open"`

	Resolution string `json:"resolution"`
	Summary    string `json:"summary"`
	URL        string `json:"url"`
	Version    string `json:"version"`
	Whiteboard string `json:"whiteboard"`
}
