package querycache

import "strconv"

type Kind string

// Cached resource kinds
const (
	KindProfile      Kind = "profile"
	KindMyGroups     Kind = "myGroups"
	KindGroup        Kind = "group"
	KindGroupMembers Kind = "groupMembers"
	KindTasks        Kind = "tasks"
	KindTask         Kind = "task"
	KindMySubmission Kind = "mySubmission"
	KindSubmissions  Kind = "submissions"
)

// Key identifies a cached resource: a kind plus, for most kinds, the id it is scoped to.
type Key struct {
	Kind Kind
	ID   int
}

func (k Key) String() string {
	if k.ID == 0 {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + strconv.Itoa(k.ID)
}

func Profile() Key                 { return Key{Kind: KindProfile} }
func MyGroups() Key                { return Key{Kind: KindMyGroups} }
func Group(id int) Key             { return Key{Kind: KindGroup, ID: id} }
func GroupMembers(groupID int) Key { return Key{Kind: KindGroupMembers, ID: groupID} }
func Tasks(groupID int) Key        { return Key{Kind: KindTasks, ID: groupID} }
func Task(id int) Key              { return Key{Kind: KindTask, ID: id} }
func MySubmission(taskID int) Key  { return Key{Kind: KindMySubmission, ID: taskID} }
func Submissions(taskID int) Key   { return Key{Kind: KindSubmissions, ID: taskID} }
