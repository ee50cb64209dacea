package v1

import "time"

// Branch describes one git branch (§3).
type Branch struct {
	Name      string `json:"name"`
	IsCurrent bool   `json:"is_current"`
	Upstream  string `json:"upstream,omitempty"`
	Ahead     int    `json:"ahead"`
	Behind    int    `json:"behind"`
}

// Commit describes one git commit (§3).
type Commit struct {
	SHA     string    `json:"sha"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// FileDiffStatus is the kind of change a file underwent (§3).
type FileDiffStatus string

const (
	DiffAdded    FileDiffStatus = "added"
	DiffModified FileDiffStatus = "modified"
	DiffDeleted  FileDiffStatus = "deleted"
	DiffRenamed  FileDiffStatus = "renamed"
)

// FileDiffEntry summarizes a single file's change between two refs (§3).
type FileDiffEntry struct {
	Status  FileDiffStatus `json:"status"`
	Path    string         `json:"path"`
	OldPath string         `json:"old_path,omitempty"`
	Hunks   []string       `json:"hunks,omitempty"`
}

// RepoStatus is the staged/unstaged path lists returned by status() (§4.3).
type RepoStatus struct {
	Staged   []FileDiffEntry `json:"staged"`
	Unstaged []FileDiffEntry `json:"unstaged"`
}

// DiffSummary groups changed paths by kind, as returned by diffSummary() (§4.3).
type DiffSummary struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
	Renamed  []string `json:"renamed"`
}
