package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/report"
	"github.com/arloliu/creport/section"
)

// readAttrs loads the container attribute file. A missing file is returned
// as an error wrapping fs.ErrNotExist.
func readAttrs(path string) (report.Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report.Header{}, err
		}

		return report.Header{}, errs.NewIOError("read", path, err)
	}

	attrs, _, err := section.ParseContainerAttrs(data)
	if err != nil {
		return report.Header{}, fmt.Errorf("%w: %s: %w", errs.ErrCorruptFormat, path, err)
	}

	h := report.Header{
		StartTime: attrs.StartTime,
		EndTime:   attrs.EndTime,
		Timestep:  attrs.Timestep,
		DataUnit:  attrs.DataUnit,
		TimeUnit:  attrs.TimeUnit,
	}
	if err := h.Validate(); err != nil {
		return report.Header{}, fmt.Errorf("%w: %s: %w", errs.ErrCorruptFormat, path, err)
	}

	return h, nil
}

// writeAttrs replaces the container attribute file atomically.
func writeAttrs(path string, h report.Header) error {
	data, err := section.NewContainerAttrs(h.StartTime, h.EndTime, h.Timestep, h.DataUnit, h.TimeUnit).Bytes()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".attrs-*")
	if err != nil {
		return errs.NewIOError("create", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errs.NewIOError("write", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errs.NewIOError("sync", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return errs.NewIOError("close", tmp.Name(), err)
	}

	return errs.NewIOError("rename", path, os.Rename(tmp.Name(), path))
}

// syncDir makes file creations and renames in dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errs.NewIOError("open", dir, err)
	}
	err = errs.NewIOError("sync", dir, d.Sync())

	return errors.Join(err, d.Close())
}
