package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/store"
	syncpkg "github.com/noodlebreak/apache-bugzilla-fetcher/pkg/sync"
)

// lookupResponse is the API shape of a name-keyed reference row.
type lookupResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type componentResponse struct {
	ID      uint   `json:"id"`
	Product string `json:"product"`
	Name    string `json:"name"`
}

type userResponse struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type linkResponse struct {
	ToBzID   int64 `json:"toBzId"`
	Resolved bool  `json:"resolved"`
}

// bugResponse is the API shape of a mirrored bug, with lookup references
// flattened to their names.
type bugResponse struct {
	BzID  int64  `json:"bzId"`
	Alias string `json:"alias,omitempty"`

	Summary    string `json:"summary,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Whiteboard string `json:"whiteboard,omitempty"`
	URL        string `json:"url,omitempty"`
	Version    string `json:"version,omitempty"`

	IsCCAccessible      bool `json:"isCcAccessible"`
	IsConfirmed         bool `json:"isConfirmed"`
	IsCreatorAccessible bool `json:"isCreatorAccessible"`
	IsOpen              bool `json:"isOpen"`

	CreationTime   string `json:"creationTime"`
	LastChangeTime string `json:"lastChangeTime,omitempty"`
	Deadline       string `json:"deadline,omitempty"`
	DupeOf         *int64 `json:"dupeOf,omitempty"`

	Classification  string `json:"classification,omitempty"`
	Component       string `json:"component"`
	OpSys           string `json:"opSys,omitempty"`
	Platform        string `json:"platform,omitempty"`
	Priority        string `json:"priority,omitempty"`
	Product         string `json:"product"`
	Severity        string `json:"severity"`
	Status          string `json:"status"`
	TargetMilestone string `json:"targetMilestone,omitempty"`

	Creator    *userResponse `json:"creator,omitempty"`
	AssignedTo *userResponse `json:"assignedTo,omitempty"`
	QaContact  *userResponse `json:"qaContact,omitempty"`

	CC       []userResponse `json:"cc,omitempty"`
	Flags    []string       `json:"flags,omitempty"`
	Groups   []string       `json:"groups,omitempty"`
	Keywords []string       `json:"keywords,omitempty"`
	Aliases  []string       `json:"aliases,omitempty"`

	Blocks    []linkResponse `json:"blocks,omitempty"`
	DependsOn []linkResponse `json:"dependsOn,omitempty"`
	SeeAlso   []linkResponse `json:"seeAlso,omitempty"`
}

func userToResponse(user *store.User) *userResponse {
	if user == nil || user.ID == 0 {
		return nil
	}
	return &userResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func bugToResponse(bug *store.Bug, links []store.BugLink) bugResponse {
	resp := bugResponse{
		BzID:  bug.BzID,
		Alias: bug.Alias,

		Summary:    bug.Summary,
		Resolution: bug.Resolution,
		Whiteboard: bug.Whiteboard,
		URL:        bug.URL,
		Version:    bug.Version,

		IsCCAccessible:      bug.IsCCAccessible,
		IsConfirmed:         bug.IsConfirmed,
		IsCreatorAccessible: bug.IsCreatorAccessible,
		IsOpen:              bug.IsOpen,

		CreationTime: bug.CreationTime.Format(time.RFC3339),
		DupeOf:       bug.DupeOf,

		Component: bug.Component.Name,
		Product:   bug.Product.Name,
		Severity:  bug.Severity.Name,
		Status:    bug.Status.Name,
	}
	if bug.LastChangeTime != nil {
		resp.LastChangeTime = bug.LastChangeTime.Format(time.RFC3339)
	}
	if bug.Deadline != nil {
		resp.Deadline = bug.Deadline.Format("2006-01-02")
	}
	if bug.Classification != nil {
		resp.Classification = bug.Classification.Name
	}
	if bug.OpSys != nil {
		resp.OpSys = bug.OpSys.Name
	}
	if bug.Platform != nil {
		resp.Platform = bug.Platform.Name
	}
	if bug.Priority != nil {
		resp.Priority = bug.Priority.Name
	}
	if bug.TargetMilestone != nil {
		resp.TargetMilestone = bug.TargetMilestone.Name
	}

	resp.Creator = userToResponse(&bug.Creator)
	resp.AssignedTo = userToResponse(bug.AssignedTo)
	resp.QaContact = userToResponse(bug.QaContact)

	for i := range bug.CC {
		resp.CC = append(resp.CC, *userToResponse(&bug.CC[i]))
	}
	for _, flag := range bug.Flags {
		resp.Flags = append(resp.Flags, flag.Name)
	}
	for _, group := range bug.Groups {
		resp.Groups = append(resp.Groups, group.Name)
	}
	for _, keyword := range bug.Keywords {
		resp.Keywords = append(resp.Keywords, keyword.Name)
	}
	for _, alias := range bug.Aliases {
		resp.Aliases = append(resp.Aliases, alias.Name)
	}

	for _, link := range links {
		entry := linkResponse{ToBzID: link.ToBzID, Resolved: link.Resolved}
		switch link.Kind {
		case store.LinkBlocks:
			resp.Blocks = append(resp.Blocks, entry)
		case store.LinkDependsOn:
			resp.DependsOn = append(resp.DependsOn, entry)
		case store.LinkSeeAlso:
			resp.SeeAlso = append(resp.SeeAlso, entry)
		}
	}

	return resp
}

// runResponse is the API shape of a sync run.
type runResponse struct {
	ID            string `json:"id"`
	Trigger       string `json:"trigger"`
	State         string `json:"state"`
	StartedAt     string `json:"startedAt"`
	FinishedAt    string `json:"finishedAt,omitempty"`
	BugsFetched   int    `json:"bugsFetched"`
	BugsCreated   int    `json:"bugsCreated"`
	BugsUpdated   int    `json:"bugsUpdated"`
	BugsFailed    int    `json:"bugsFailed,omitempty"`
	LinksResolved int64  `json:"linksResolved"`
	LastError     string `json:"lastError,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
}

func runToResponse(run *syncpkg.SyncRun) runResponse {
	resp := runResponse{
		ID:            run.ID,
		Trigger:       string(run.Trigger),
		State:         string(run.State),
		StartedAt:     run.StartedAt.Format(time.RFC3339),
		BugsFetched:   run.BugsFetched,
		BugsCreated:   run.BugsCreated,
		BugsUpdated:   run.BugsUpdated,
		BugsFailed:    run.BugsFailed,
		LinksResolved: run.LinksResolved,
		LastError:     run.LastError,
		DurationMs:    run.DurationMs,
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
