package explorer

import (
	"context"
	"errors"
	"fmt"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
)

// Level of a status message
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Status is the single status line of a session. Every operation replaces it.
type Status struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

var opLabels = map[string]string{
	"createFile":      "create file",
	"createDirectory": "create directory",
	"deleteEntry":     "delete",
	"readFile":        "read",
	"writeFile":       "write",
	"updateFile":      "save",
	"stat":            "stat",
	"list":            "list",
	"buildTree":       "load",
}

func reason(err error) string {
	switch {
	case errors.Is(err, opfs.ErrNotFound):
		return "it does not exist"
	case errors.Is(err, opfs.ErrTypeMismatch):
		return "a file was expected but a directory is there, or the other way round"
	case errors.Is(err, opfs.ErrPermission):
		return "access to the local directory was declined or revoked; grant it again"
	case errors.Is(err, opfs.ErrAlreadyExists):
		return "the name is already taken"
	case errors.Is(err, opfs.ErrQuotaExceeded):
		return "the bucket quota would be exceeded"
	case errors.Is(err, opfs.ErrInvalidName):
		return "the name is not valid"
	case errors.Is(err, opfs.ErrNotEmpty):
		return "the directory is not empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "the operation was interrupted"
	default:
		return err.Error()
	}
}

// Describe turns an operation failure into a message for the status line.
// Path errors get a plain description of the cause; other errors already
// carry their context and are shown as they are.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var pe *opfs.PathError
	if errors.As(err, &pe) {
		op, ok := opLabels[pe.Op]
		if !ok {
			op = pe.Op
		}
		target := pe.Root
		if pe.Path != "" {
			target += ":" + pe.Path
		}
		return fmt.Sprintf("Cannot %s %s: %s", op, target, reason(err))
	}
	return "Failed: " + err.Error()
}
