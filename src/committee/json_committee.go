package committee

import (
	"os"
	"path/filepath"
	"sync"
)

const jsonCommitteePath = "committee.json"

// JSONCommittee is used to provide committee persistence on disk in the form of
// a JSON file. This allows human operators to manipulate the file.
type JSONCommittee struct {
	l    sync.Mutex
	path string
}

// NewJSONCommittee creates a new JSONCommittee with reference to a base
// directory where the JSON file resides.
func NewJSONCommittee(base string) *JSONCommittee {
	return &JSONCommittee{
		path: filepath.Join(base, jsonCommitteePath),
	}
}

// NewJSONCommitteeFile creates a JSONCommittee backed by an explicit file path.
func NewJSONCommitteeFile(path string) *JSONCommittee {
	return &JSONCommittee{
		path: path,
	}
}

// Path returns the location of the underlying file.
func (j *JSONCommittee) Path() string {
	return j.path
}

// Committee parses the underlying JSON file and returns the corresponding
// Committee.
func (j *JSONCommittee) Committee() (*Committee, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	return Unmarshal(buf)
}

// Write persists a Committee to a JSON file.
func (j *JSONCommittee) Write(c *Committee) error {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf, 0644)
}
