package lookup

import (
	"fmt"
	"os"
)

// NewFileSentinel is the literal token spec.md §4.6 defines: passed as
// contents to writefile(), it means "truncate/create" rather than append.
const NewFileSentinel = "_NEWFILE!"

// WriteFile implements writefile(path, contents). Absolute paths are
// accepted as-is (spec.md §4.6). When contents is the sentinel, the file
// is truncated/created empty; otherwise, per the original qsv test suite
// (SPEC_FULL.md §6.2), contents are appended to an existing file or
// create a new one.
func WriteFile(path, contents string) error {
	if contents == NewFileSentinel {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		return f.Close()
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(contents); err != nil {
		return fmt.Errorf("writing to %s: %w", path, err)
	}
	return nil
}
