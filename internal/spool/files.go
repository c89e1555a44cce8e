package spool

import (
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// removeSpoolFiles deletes every spool file in dir, including ones left
// behind by processes that crashed before closing theirs.
func removeSpoolFiles(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, FilePrefix+"*"+FileSuffix))
	if err != nil {
		return err
	}

	var errs error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
