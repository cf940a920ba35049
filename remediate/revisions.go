package remediate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RevisionStore owns the intermediate document revisions of one remediation
// session. Every path it hands out is removed once released or on Cleanup.
type RevisionStore struct {
	dir     string
	session string
	ext     string
	next    int
	owned   []string
	log     *logrus.Entry
}

// NewRevisionStore creates a store writing into dir (the system temp dir when
// empty). Revision files keep the extension of the source document.
func NewRevisionStore(dir, source string, log *logrus.Entry) *RevisionStore {
	if dir == "" {
		dir = os.TempDir()
	}
	ext := filepath.Ext(source)
	if ext == "" {
		ext = ".docx"
	}
	return &RevisionStore{
		dir:     dir,
		session: uuid.New().String(),
		ext:     ext,
		log:     log,
	}
}

// Session returns the session ID embedded in revision file names
func (s *RevisionStore) Session() string {
	return s.session
}

// NewPath allocates a path for the next revision
func (s *RevisionStore) NewPath(method Method) string {
	s.next++
	name := fmt.Sprintf("docxblank-%s-%03d-%s%s", s.session, s.next, strings.ReplaceAll(string(method), "_", "-"), s.ext)
	path := filepath.Join(s.dir, name)
	s.owned = append(s.owned, path)
	return path
}

// Owns reports whether path was allocated by this store and not yet released
func (s *RevisionStore) Owns(path string) bool {
	for _, p := range s.owned {
		if p == path {
			return true
		}
	}
	return false
}

// Owned returns the revisions still held
func (s *RevisionStore) Owned() []string {
	return append([]string(nil), s.owned...)
}

// Release deletes a revision owned by the store. Paths it does not own are
// left alone.
func (s *RevisionStore) Release(path string) {
	for i, p := range s.owned {
		if p != path {
			continue
		}
		s.owned = append(s.owned[:i], s.owned[i+1:]...)
		s.remove(path)
		return
	}
}

// Cleanup deletes every revision still held
func (s *RevisionStore) Cleanup() {
	for _, path := range s.owned {
		s.remove(path)
	}
	s.owned = nil
}

func (s *RevisionStore) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.WithError(err).WithField("path", path).Warn("Cannot remove revision file")
	}
}
