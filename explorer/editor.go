package explorer

import (
	"context"
	"fmt"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/filesystem"
)

// EditorState is the state of the single file editor
type EditorState int

const (
	EditorClosed EditorState = iota
	EditorOpen
	EditorDirty
)

func (s EditorState) String() string {
	switch s {
	case EditorOpen:
		return "open"
	case EditorDirty:
		return "dirty"
	default:
		return "closed"
	}
}

// Editor is the file currently open in the session. Content is the last
// persisted text; Edited the unsaved text while Dirty.
type Editor struct {
	State   EditorState
	Root    string
	Path    string
	Content string
	Edited  string
}

// Text returns what the editor currently shows
func (e Editor) Text() string {
	if e.State == EditorDirty {
		return e.Edited
	}
	return e.Content
}

func errNoFile() error {
	return fmt.Errorf("no file is open: %w", opfs.ErrNotFound)
}

// Open reads the file at path into the editor. Unsaved edits to another file
// are discarded with a warning. Re-opening the file being edited refreshes
// its persisted content and keeps the edits.
func (s *Session) Open(ctx context.Context, root, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clean, err := filesystem.CleanPath(path)
	if err != nil {
		return s.fail(opfs.WrapPath("readFile", root, path, err))
	}
	content, err := s.fs.ReadFile(ctx, root, clean)
	if err != nil {
		return s.fail(err)
	}

	prev := s.editor
	s.editor = Editor{State: EditorOpen, Root: root, Path: clean, Content: content}
	if prev.State == EditorDirty {
		if prev.Root != root || prev.Path != clean {
			s.setStatus(LevelWarn, "Discarded unsaved edits to %s:%s", prev.Root, prev.Path)
			return nil
		}
		if prev.Edited != content {
			s.editor.State, s.editor.Edited = EditorDirty, prev.Edited
			s.setStatus(LevelInfo, "Kept unsaved edits to %s:%s", root, clean)
			return nil
		}
	}
	s.setStatus(LevelInfo, "Opened %s:%s", root, clean)
	return nil
}

// Edit replaces the editor text. Editing back to the persisted content makes
// the editor clean again.
func (s *Session) Edit(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editor.State == EditorClosed {
		return s.fail(errNoFile())
	}
	if content == s.editor.Content {
		s.editor.State, s.editor.Edited = EditorOpen, ""
		return nil
	}
	s.editor.State, s.editor.Edited = EditorDirty, content
	return nil
}

// Save writes the edited text back to the open file. A file removed since it
// was opened is not recreated; the edits stay in the editor.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.editor
	switch e.State {
	case EditorClosed:
		return s.fail(errNoFile())
	case EditorOpen:
		s.setStatus(LevelInfo, "Nothing to save")
		return nil
	}
	if err := s.fs.UpdateFile(ctx, e.Root, e.Path, e.Edited); err != nil {
		return s.fail(err)
	}
	s.editor = Editor{State: EditorOpen, Root: e.Root, Path: e.Path, Content: e.Edited}
	if err := s.reload(ctx, e.Root); err != nil {
		return s.fail(err)
	}
	s.setStatus(LevelInfo, "Saved %s:%s", e.Root, e.Path)
	return nil
}

// Close closes the editor, discarding unsaved edits with a warning
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.editor
	s.editor = Editor{}
	if prev.State == EditorDirty {
		s.setStatus(LevelWarn, "Discarded unsaved edits to %s:%s", prev.Root, prev.Path)
		return
	}
	if prev.State == EditorOpen {
		s.setStatus(LevelInfo, "Closed %s:%s", prev.Root, prev.Path)
	}
}
