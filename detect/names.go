package detect

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ClassNames maps detector class indices to labels
type ClassNames []string

// LoadClassNames reads one label per line. Blank lines keep their index.
func LoadClassNames(path string) (ClassNames, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open class names '%s'", path)
	}
	defer file.Close()

	names := ClassNames{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "can't read class names '%s'", path)
	}
	// Trailing newline produces no extra label, trailing blank lines do
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	return names, nil
}

// Label returns name of class or "class <n>" when unknown
func (names ClassNames) Label(classID int) string {
	if classID >= 0 && classID < len(names) && names[classID] != "" {
		return names[classID]
	}
	return fmt.Sprintf("class %d", classID)
}
