package localdir

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	opfs "github.com/sashapodgoreanu/opfs-poc"
)

// PathPicker is a Picker that always picks the same path, used when the path
// is given on the command line
type PathPicker string

func (p PathPicker) Pick(context.Context) (string, error) {
	if strings.TrimSpace(string(p)) == "" {
		return "", fmt.Errorf("no directory picked: %w", opfs.ErrPermission)
	}
	return string(p), nil
}

// PromptPicker asks for a directory on a terminal. An empty answer declines.
type PromptPicker struct {
	In  io.Reader
	Out io.Writer
}

func (p PromptPicker) Pick(ctx context.Context) (string, error) {
	fmt.Fprint(p.Out, "Allow access to directory (empty to decline): ")
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("access declined: %w", opfs.ErrPermission)
	}
	return line, nil
}
