package migrator

import (
	"encoding/json"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/pseudomuto/hermes/pkg/script"
	"gopkg.in/yaml.v3"
)

// slugSeparator splits a unit directory name into revision and slug.
const slugSeparator = "--"

type descriptor struct {
	Version         string `toml:"version" yaml:"version" json:"version"`
	PreviousVersion string `toml:"previous_version" yaml:"previous_version" json:"previous_version"`
	NextVersion     string `toml:"next_version" yaml:"next_version" json:"next_version"`
	Message         string `toml:"message" yaml:"message" json:"message"`
	CreationDate    any    `toml:"creation_date" yaml:"creation_date" json:"creation_date"`
}

var descriptorDecoders = []struct {
	name   string
	decode func([]byte, any) error
}{
	{name: "info.toml", decode: toml.Unmarshal},
	{name: "info.yaml", decode: yaml.Unmarshal},
	{name: "info.yml", decode: yaml.Unmarshal},
	{name: "info.json", decode: json.Unmarshal},
}

var creationDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// LoadDir loads every migration unit found directly under the root of fsys.
//
// Each sub-directory is a unit. Non-directory entries and directories whose
// names start with "." or "_" are skipped. Any other directory must contain a
// valid descriptor plus upgrade.sql and downgrade.sql, otherwise a *LoadError is
// returned. Revisions must be unique across the set and may not use the
// reserved names "head" or "base".
//
// Units are returned in directory iteration order; no chain ordering is implied.
//
// Example usage:
//
//	units, err := migrator.LoadDir(os.DirFS("versions"))
//	if err != nil {
//		return err
//	}
//
//	chain, err := chain.Resolve(units)
func LoadDir(fsys fs.FS) ([]*Unit, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, &LoadError{Path: ".", Err: errors.Wrap(err, "failed to read migrations directory")}
	}

	var (
		units []*Unit
		seen  = make(map[string]string, len(entries))
	)

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}

		unit, err := loadUnit(fsys, name)
		if err != nil {
			return nil, err
		}

		if other, ok := seen[unit.Revision]; ok {
			return nil, &LoadError{
				Path: name,
				Err:  errors.Errorf("duplicate revision %q, also defined in %s", unit.Revision, other),
			}
		}

		seen[unit.Revision] = name
		units = append(units, unit)
	}

	return units, nil
}

func loadUnit(fsys fs.FS, dir string) (*Unit, error) {
	desc, err := readDescriptor(fsys, dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Err: err}
	}

	if err := validateDescriptor(dir, desc); err != nil {
		return nil, &LoadError{Path: dir, Err: err}
	}

	createdAt, err := parseCreationDate(desc.CreationDate)
	if err != nil {
		return nil, &LoadError{Path: dir, Err: err}
	}

	unit := &Unit{
		Revision:  desc.Version,
		Parent:    strings.TrimSpace(desc.PreviousVersion),
		Message:   desc.Message,
		CreatedAt: createdAt,
		Dir:       dir,
	}

	if unit.Up, unit.UpStatements, err = readScript(fsys, dir, consts.UpgradeScript); err != nil {
		return nil, &LoadError{Path: path.Join(dir, consts.UpgradeScript), Err: err}
	}

	if unit.Down, unit.DownStatements, err = readScript(fsys, dir, consts.DowngradeScript); err != nil {
		return nil, &LoadError{Path: path.Join(dir, consts.DowngradeScript), Err: err}
	}

	return unit, nil
}

func readDescriptor(fsys fs.FS, dir string) (*descriptor, error) {
	var (
		found  []string
		decode func([]byte, any) error
	)

	for _, d := range descriptorDecoders {
		if _, err := fs.Stat(fsys, path.Join(dir, d.name)); err == nil {
			found = append(found, d.name)
			decode = d.decode
		}
	}

	switch len(found) {
	case 0:
		return nil, errors.New("no descriptor found (expected info.toml, info.yaml, info.yml or info.json)")
	case 1:
	default:
		return nil, errors.Errorf("multiple descriptors found: %s", strings.Join(found, ", "))
	}

	file := path.Join(dir, found[0])
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read: %s", found[0])
	}

	var desc descriptor
	if err := decode(data, &desc); err != nil {
		return nil, errors.Wrapf(err, "failed to decode: %s", found[0])
	}

	desc.Version = strings.TrimSpace(desc.Version)
	desc.Message = strings.TrimSpace(desc.Message)
	return &desc, nil
}

func validateDescriptor(dir string, desc *descriptor) error {
	if desc.Version == "" {
		return errors.New("missing required field: version")
	}

	if desc.Message == "" {
		return errors.New("missing required field: message")
	}

	if desc.CreationDate == nil {
		return errors.New("missing required field: creation_date")
	}

	switch strings.ToLower(desc.Version) {
	case consts.TargetHead, consts.TargetBase:
		return errors.Errorf("revision %q is reserved", desc.Version)
	}

	prefix, _, _ := strings.Cut(dir, slugSeparator)
	if prefix != desc.Version {
		return errors.Errorf("directory name %q does not match revision %q", dir, desc.Version)
	}

	return nil
}

func parseCreationDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case toml.LocalDateTime:
		return t.AsTime(time.UTC), nil
	case toml.LocalDate:
		return t.AsTime(time.UTC), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range creationDateLayouts {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, errors.Errorf("invalid creation_date: %q", t)
	default:
		return time.Time{}, errors.Errorf("invalid creation_date: %v", v)
	}
}

func readScript(fsys fs.FS, dir, name string) (string, []string, error) {
	data, err := fs.ReadFile(fsys, path.Join(dir, name))
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to read script: %s", name)
	}

	stmts, err := script.Split(string(data))
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to split script: %s", name)
	}

	if len(stmts) == 0 {
		return "", nil, errors.Errorf("no statements found in script: %s", name)
	}

	return string(data), stmts, nil
}
